package checkin

import (
	"github.com/looplab/fsm"

	"shootday/internal/schedule"
)

// Action names double as fsm event names and metric labels.
const (
	ActionWake   = "wake"
	ActionDepart = "depart"
	ActionArrive = "arrive"
)

var lifecycle = fsm.Events{
	{Name: ActionWake, Src: []string{schedule.StatePending.String()}, Dst: schedule.StateWoke.String()},
	{Name: ActionDepart, Src: []string{schedule.StateWoke.String()}, Dst: schedule.StateDeparted.String()},
	{Name: ActionArrive, Src: []string{schedule.StateDeparted.String()}, Dst: schedule.StateArrived.String()},
}

// targetState is the state an action moves a record into.
var targetState = map[string]schedule.State{
	ActionWake:   schedule.StateWoke,
	ActionDepart: schedule.StateDeparted,
	ActionArrive: schedule.StateArrived,
}

// canFire reports whether action is a legal single step from st.
func canFire(st schedule.State, action string) bool {
	return fsm.NewFSM(st.String(), lifecycle, fsm.Callbacks{}).Can(action)
}

// reached reports whether st already sits at or beyond the action's target.
func reached(st schedule.State, action string) bool {
	return st >= targetState[action]
}
