package monitor

import (
	"fmt"
	"time"
)

// AlertState is the derived delay state of one transition.
type AlertState string

const (
	StateOnTime  AlertState = "on_time"
	StateUnknown AlertState = "unknown"
	StateWarning AlertState = "warning"
	StateDelayed AlertState = "delayed"
)

func (s AlertState) severity() int {
	switch s {
	case StateDelayed:
		return 3
	case StateWarning:
		return 2
	case StateUnknown:
		return 1
	default:
		return 0
	}
}

// Alerting reports whether the state belongs in the operator feed.
func (s AlertState) Alerting() bool {
	return s == StateWarning || s == StateDelayed
}

// Worst returns the most severe state; on_time for an empty input.
func Worst(states ...AlertState) AlertState {
	worst := StateOnTime
	for _, s := range states {
		if s.severity() > worst.severity() {
			worst = s
		}
	}
	return worst
}

// Transition is one monitored step of the check-in lifecycle.
type Transition string

const (
	TransitionWake      Transition = "wake"
	TransitionDeparture Transition = "departure"
	TransitionArrival   Transition = "arrival"
)

func (t Transition) order() int {
	switch t {
	case TransitionWake:
		return 0
	case TransitionDeparture:
		return 1
	default:
		return 2
	}
}

// Targets are the deadlines of one photographer on one schedule.
type Targets struct {
	Wake      time.Time `json:"wake"`
	Departure time.Time `json:"departure"`
	Arrival   time.Time `json:"arrival"`
}

// ComputeTargets derives deadlines by walking back from the arrival target.
func ComputeTargets(arrival time.Time, travelMinutes int, wakeBuffer time.Duration) Targets {
	departure := arrival.Add(-time.Duration(travelMinutes) * time.Minute)
	return Targets{
		Wake:      departure.Add(-wakeBuffer),
		Departure: departure,
		Arrival:   arrival,
	}
}

// For returns the deadline of a transition.
func (t Targets) For(tr Transition) time.Time {
	switch tr {
	case TransitionWake:
		return t.Wake
	case TransitionDeparture:
		return t.Departure
	case TransitionArrival:
		return t.Arrival
	default:
		panic(fmt.Sprintf("monitor: unknown transition %q", tr))
	}
}

// Classify compares an action against its deadline. A recorded action is
// on time up to target+grace. A missing one warns from target-grace and is
// delayed once the target has passed.
func Classify(target time.Time, actual *time.Time, now time.Time, grace time.Duration) AlertState {
	if actual != nil {
		if actual.After(target.Add(grace)) {
			return StateDelayed
		}
		return StateOnTime
	}
	switch {
	case now.After(target):
		return StateDelayed
	case !now.Before(target.Add(-grace)):
		return StateWarning
	default:
		return StateUnknown
	}
}
