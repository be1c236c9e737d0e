package checkin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shootday/internal/schedule"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from    schedule.State
		action  string
		fire    bool
		reached bool
	}{
		{schedule.StatePending, ActionWake, true, false},
		{schedule.StatePending, ActionDepart, false, false},
		{schedule.StatePending, ActionArrive, false, false},
		{schedule.StateWoke, ActionWake, false, true},
		{schedule.StateWoke, ActionDepart, true, false},
		{schedule.StateWoke, ActionArrive, false, false},
		{schedule.StateDeparted, ActionDepart, false, true},
		{schedule.StateDeparted, ActionArrive, true, false},
		{schedule.StateArrived, ActionArrive, false, true},
		{schedule.StateArrived, ActionWake, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.action, func(t *testing.T) {
			assert.Equal(t, tt.fire, canFire(tt.from, tt.action))
			assert.Equal(t, tt.reached, reached(tt.from, tt.action))
		})
	}
}
