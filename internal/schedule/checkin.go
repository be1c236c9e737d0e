package schedule

import (
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle position of one photographer on one schedule.
type State int

const (
	StatePending State = iota
	StateWoke
	StateDeparted
	StateArrived
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateWoke:
		return "woke"
	case StateDeparted:
		return "departed"
	case StateArrived:
		return "arrived"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RecordKey identifies a check-in record.
type RecordKey struct {
	PhotographerID int64
	ScheduleID     int64
}

// CheckInRecord holds the progress timestamps of one photographer on one schedule.
type CheckInRecord struct {
	PhotographerID  int64      `json:"photographer_id"`
	ScheduleID      int64      `json:"schedule_id"`
	WokeAt          *time.Time `json:"woke_at,omitempty"`
	DepartedAt      *time.Time `json:"departed_at,omitempty"`
	ArrivedAt       *time.Time `json:"arrived_at,omitempty"`
	ArrivalPhotoRef string     `json:"arrival_photo_ref,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewRecord returns an empty pending record.
func NewRecord(photographerID, scheduleID int64) CheckInRecord {
	return CheckInRecord{PhotographerID: photographerID, ScheduleID: scheduleID}
}

func (r CheckInRecord) Key() RecordKey {
	return RecordKey{PhotographerID: r.PhotographerID, ScheduleID: r.ScheduleID}
}

// Validate checks the record invariants: each timestamp requires the previous
// one, timestamps never decrease, and arrival is set exactly when a photo is.
func (r CheckInRecord) Validate() error {
	if r.DepartedAt != nil && r.WokeAt == nil {
		return fmt.Errorf("%w: departed without wake", ErrCorruptRecord)
	}
	if r.ArrivedAt != nil && r.DepartedAt == nil {
		return fmt.Errorf("%w: arrived without departure", ErrCorruptRecord)
	}
	if (r.ArrivedAt != nil) != (strings.TrimSpace(r.ArrivalPhotoRef) != "") {
		return fmt.Errorf("%w: arrival and photo must be set together", ErrCorruptRecord)
	}
	if r.WokeAt != nil && r.DepartedAt != nil && r.DepartedAt.Before(*r.WokeAt) {
		return fmt.Errorf("%w: departed before wake", ErrCorruptRecord)
	}
	if r.DepartedAt != nil && r.ArrivedAt != nil && r.ArrivedAt.Before(*r.DepartedAt) {
		return fmt.Errorf("%w: arrived before departure", ErrCorruptRecord)
	}
	return nil
}

// State derives the lifecycle state from the populated timestamps after
// validating the record.
func (r CheckInRecord) State() (State, error) {
	if err := r.Validate(); err != nil {
		return StatePending, err
	}
	switch {
	case r.ArrivedAt != nil:
		return StateArrived, nil
	case r.DepartedAt != nil:
		return StateDeparted, nil
	case r.WokeAt != nil:
		return StateWoke, nil
	default:
		return StatePending, nil
	}
}
