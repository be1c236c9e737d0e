package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tod(h, m int) *TimeOfDay {
	t := NewTimeOfDay(h, m)
	return &t
}

func TestArrivalTargetDerivation(t *testing.T) {
	loc := time.UTC
	day := Date{Year: 2026, Month: time.May, Day: 9}

	tests := []struct {
		name string
		s    Schedule
		want time.Time
		ok   bool
	}{
		{
			name: "derived from ceremony",
			s:    Schedule{CeremonyDate: day, CeremonyTime: tod(12, 0)},
			want: time.Date(2026, 5, 9, 10, 30, 0, 0, loc),
			ok:   true,
		},
		{
			name: "explicit shoot start",
			s:    Schedule{CeremonyDate: day, CeremonyTime: tod(12, 0), ShootStartTime: tod(10, 0)},
			want: time.Date(2026, 5, 9, 9, 30, 0, 0, loc),
			ok:   true,
		},
		{
			name: "explicit arrival wins",
			s:    Schedule{CeremonyDate: day, CeremonyTime: tod(12, 0), ArrivalTargetTime: tod(14, 0)},
			want: time.Date(2026, 5, 9, 14, 0, 0, 0, loc),
			ok:   true,
		},
		{
			name: "no times",
			s:    Schedule{CeremonyDate: day},
			ok:   false,
		},
		{
			name: "crosses midnight",
			s:    Schedule{CeremonyDate: day, CeremonyTime: tod(0, 30)},
			want: time.Date(2026, 5, 8, 23, 0, 0, 0, loc),
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.s.ArrivalTargetAt(loc)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeVenue(t *testing.T) {
	assert.Equal(t, "grand hall", NormalizeVenue("  Grand   Hall "))
	assert.Equal(t, NormalizeVenue("Grand Hall"), NormalizeVenue("grand hall\t"))
}

func TestWeekStart(t *testing.T) {
	// 2026-05-09 is a Saturday.
	sat := Date{Year: 2026, Month: time.May, Day: 9}
	assert.Equal(t, Date{Year: 2026, Month: time.May, Day: 4}, sat.WeekStart())

	sun := Date{Year: 2026, Month: time.May, Day: 10}
	assert.Equal(t, Date{Year: 2026, Month: time.May, Day: 4}, sun.WeekStart())

	mon := Date{Year: 2026, Month: time.May, Day: 4}
	assert.Equal(t, mon, mon.WeekStart())
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-01-31", d.String())

	require.NoError(t, d.Scan("2026-02-01T00:00:00Z"))
	assert.Equal(t, "2026-02-01", d.String())
	assert.Equal(t, "2026-03-01", d.AddDays(28).String())
}

func TestRecordState(t *testing.T) {
	t0 := time.Date(2026, 5, 9, 7, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t1.Add(time.Hour)

	r := NewRecord(1, 2)
	st, err := r.State()
	require.NoError(t, err)
	assert.Equal(t, StatePending, st)

	r.WokeAt, r.DepartedAt = &t0, &t1
	st, err = r.State()
	require.NoError(t, err)
	assert.Equal(t, StateDeparted, st)

	r.ArrivedAt = &t2
	_, err = r.State()
	assert.True(t, errors.Is(err, ErrCorruptRecord), "arrival without photo must be rejected")

	r.ArrivalPhotoRef = "photo-1"
	st, err = r.State()
	require.NoError(t, err)
	assert.Equal(t, StateArrived, st)

	r.DepartedAt = &t2
	r.ArrivedAt = &t1
	_, err = r.State()
	assert.ErrorIs(t, err, ErrCorruptRecord)
}
