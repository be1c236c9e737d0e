package checkin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EagleChen/mapmutex"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"shootday/internal/metrics"
	"shootday/internal/schedule"
)

// Repository is the storage the state machine needs. Implementations must
// persist SaveCheckIns atomically and must never move a stored timestamp.
type Repository interface {
	GetSchedule(ctx context.Context, id int64) (schedule.Schedule, error)
	ListPhotographerSchedules(ctx context.Context, photographerID int64, from, to schedule.Date) ([]schedule.Schedule, error)
	ListCheckIns(ctx context.Context, photographerID int64, scheduleIDs []int64) (map[int64]schedule.CheckInRecord, error)
	SaveCheckIns(ctx context.Context, records []schedule.CheckInRecord) error
}

// ScheduleStatus is one row of a photographer's weekly view.
type ScheduleStatus struct {
	Schedule schedule.Schedule      `json:"schedule"`
	Role     schedule.Role          `json:"role"`
	State    schedule.State         `json:"state"`
	Record   schedule.CheckInRecord `json:"record"`
}

// A single TryLock gives up after a few tens of milliseconds so lockDay
// notices cancellation between attempts.
const (
	lockRetries   = 16
	lockMaxDelay  = float64(10 * time.Millisecond)
	lockBaseDelay = float64(10 * time.Microsecond)
)

// Service runs the Pending -> Woke -> Departed -> Arrived lifecycle.
type Service struct {
	repo  Repository
	clock clock.Clock
	loc   *time.Location
	locks *mapmutex.Mutex
	log   *zap.Logger
}

// NewService creates a service backed by a repository. Ceremony dates are
// interpreted in loc.
func NewService(repo Repository, clk clock.Clock, loc *time.Location, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:  repo,
		clock: clk,
		loc:   loc,
		locks: mapmutex.NewCustomizedMapMutex(lockRetries, lockMaxDelay, lockBaseDelay, 1.5, 0.2),
		log:   log,
	}
}

// Location returns the zone ceremony dates are evaluated in.
func (s *Service) Location() *time.Location { return s.loc }

// Today returns the current local ceremony date.
func (s *Service) Today() schedule.Date {
	return schedule.DateOf(s.clock.Now().In(s.loc))
}

// RecordWake marks every pending schedule of the photographer on date as woke.
// It returns how many records changed; repeating it the same day returns 0.
func (s *Service) RecordWake(ctx context.Context, photographerID int64, date schedule.Date) (int, error) {
	unlock, err := s.lockDay(ctx, photographerID, date)
	if err != nil {
		return 0, err
	}
	defer unlock()

	day, err := s.repo.ListPhotographerSchedules(ctx, photographerID, date, date)
	if err != nil {
		return 0, fmt.Errorf("record wake: list schedules: %w", err)
	}
	if len(day) == 0 {
		s.observe(ActionWake, schedule.ErrNotFound)
		return 0, fmt.Errorf("record wake: photographer %d on %s: %w", photographerID, date, schedule.ErrNotFound)
	}

	n, err := s.fanOut(ctx, ActionWake, photographerID, day, "")
	s.observe(ActionWake, err)
	if err != nil {
		return 0, fmt.Errorf("record wake: %w", err)
	}
	return n, nil
}

// RecordDeparture marks the venue group of scheduleID as departed. The target
// schedule must already be woke.
func (s *Service) RecordDeparture(ctx context.Context, photographerID, scheduleID int64) (int, error) {
	n, err := s.groupAction(ctx, ActionDepart, photographerID, scheduleID, "")
	s.observe(ActionDepart, err)
	if err != nil {
		return 0, fmt.Errorf("record departure: %w", err)
	}
	return n, nil
}

// RecordArrival marks the venue group of scheduleID as arrived, sharing
// photoRef as evidence across the group. The target must already be departed.
func (s *Service) RecordArrival(ctx context.Context, photographerID, scheduleID int64, photoRef string) (int, error) {
	photoRef = strings.TrimSpace(photoRef)
	if photoRef == "" {
		s.observe(ActionArrive, schedule.ErrMissingEvidence)
		return 0, fmt.Errorf("record arrival: schedule %d: %w", scheduleID, schedule.ErrMissingEvidence)
	}
	n, err := s.groupAction(ctx, ActionArrive, photographerID, scheduleID, photoRef)
	s.observe(ActionArrive, err)
	if err != nil {
		return 0, fmt.Errorf("record arrival: %w", err)
	}
	return n, nil
}

// StateOf derives the current state of the photographer on a schedule.
func (s *Service) StateOf(ctx context.Context, photographerID, scheduleID int64) (schedule.State, error) {
	sc, err := s.bookedSchedule(ctx, photographerID, scheduleID)
	if err != nil {
		return schedule.StatePending, fmt.Errorf("state of: %w", err)
	}
	records, err := s.repo.ListCheckIns(ctx, photographerID, []int64{sc.ID})
	if err != nil {
		return schedule.StatePending, fmt.Errorf("state of: list check-ins: %w", err)
	}
	rec, ok := records[sc.ID]
	if !ok {
		return schedule.StatePending, nil
	}
	return rec.State()
}

// Week lists the photographer's schedules from Monday to Sunday of the week
// containing now, with their current state.
func (s *Service) Week(ctx context.Context, photographerID int64, now time.Time) ([]ScheduleStatus, error) {
	from := schedule.DateOf(now.In(s.loc)).WeekStart()
	to := from.AddDays(6)

	list, err := s.repo.ListPhotographerSchedules(ctx, photographerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("week: list schedules: %w", err)
	}
	ids := make([]int64, 0, len(list))
	for _, sc := range list {
		ids = append(ids, sc.ID)
	}
	records, err := s.repo.ListCheckIns(ctx, photographerID, ids)
	if err != nil {
		return nil, fmt.Errorf("week: list check-ins: %w", err)
	}

	out := make([]ScheduleStatus, 0, len(list))
	for _, sc := range list {
		rec, ok := records[sc.ID]
		if !ok {
			rec = schedule.NewRecord(photographerID, sc.ID)
		}
		st, err := rec.State()
		if err != nil {
			return nil, fmt.Errorf("week: schedule %d: %w", sc.ID, err)
		}
		out = append(out, ScheduleStatus{Schedule: sc, Role: sc.RoleOf(photographerID), State: st, Record: rec})
	}
	return out, nil
}

func (s *Service) groupAction(ctx context.Context, action string, photographerID, scheduleID int64, photoRef string) (int, error) {
	target, err := s.bookedSchedule(ctx, photographerID, scheduleID)
	if err != nil {
		return 0, err
	}

	unlock, err := s.lockDay(ctx, photographerID, target.CeremonyDate)
	if err != nil {
		return 0, err
	}
	defer unlock()

	day, err := s.repo.ListPhotographerSchedules(ctx, photographerID, target.CeremonyDate, target.CeremonyDate)
	if err != nil {
		return 0, fmt.Errorf("list schedules: %w", err)
	}
	group := make([]schedule.Schedule, 0, len(day))
	for _, sc := range day {
		if schedule.SameVenueGroup(sc, target) {
			group = append(group, sc)
		}
	}

	records, err := s.loadRecords(ctx, photographerID, group)
	if err != nil {
		return 0, err
	}
	st, err := records[target.ID].State()
	if err != nil {
		return 0, fmt.Errorf("schedule %d: %w", target.ID, err)
	}
	if !reached(st, action) && !canFire(st, action) {
		return 0, fmt.Errorf("%s schedule %d from %s: %w", action, target.ID, st, schedule.ErrInvalidTransition)
	}

	return s.apply(ctx, action, group, records, photoRef)
}

func (s *Service) fanOut(ctx context.Context, action string, photographerID int64, list []schedule.Schedule, photoRef string) (int, error) {
	records, err := s.loadRecords(ctx, photographerID, list)
	if err != nil {
		return 0, err
	}
	return s.apply(ctx, action, list, records, photoRef)
}

// apply advances every member that can legally take action and saves the
// changed records in one write.
func (s *Service) apply(ctx context.Context, action string, members []schedule.Schedule, records map[int64]schedule.CheckInRecord, photoRef string) (int, error) {
	now := s.clock.Now()
	changed := make([]schedule.CheckInRecord, 0, len(members))

	for _, sc := range members {
		rec := records[sc.ID]
		st, err := rec.State()
		if err != nil {
			return 0, fmt.Errorf("schedule %d: %w", sc.ID, err)
		}
		if !canFire(st, action) {
			continue
		}

		switch action {
		case ActionWake:
			rec.WokeAt = ptr(now)
		case ActionDepart:
			rec.DepartedAt = ptr(notBefore(now, rec.WokeAt))
		case ActionArrive:
			rec.ArrivedAt = ptr(notBefore(now, rec.DepartedAt))
			rec.ArrivalPhotoRef = photoRef
		}
		rec.UpdatedAt = now

		if err := rec.Validate(); err != nil {
			return 0, fmt.Errorf("schedule %d after %s: %w", sc.ID, action, err)
		}
		changed = append(changed, rec)
	}

	if len(changed) == 0 {
		return 0, nil
	}
	if err := s.repo.SaveCheckIns(ctx, changed); err != nil {
		return 0, fmt.Errorf("save check-ins: %w", err)
	}

	metrics.CheckinRecordsUpdated.WithLabelValues(action).Add(float64(len(changed)))
	s.log.Info("check-in recorded",
		zap.String("action", action),
		zap.Int64("photographer_id", changed[0].PhotographerID),
		zap.Int("records", len(changed)),
	)
	return len(changed), nil
}

func (s *Service) loadRecords(ctx context.Context, photographerID int64, list []schedule.Schedule) (map[int64]schedule.CheckInRecord, error) {
	ids := make([]int64, 0, len(list))
	for _, sc := range list {
		ids = append(ids, sc.ID)
	}
	stored, err := s.repo.ListCheckIns(ctx, photographerID, ids)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	out := make(map[int64]schedule.CheckInRecord, len(ids))
	for _, id := range ids {
		rec, ok := stored[id]
		if !ok {
			rec = schedule.NewRecord(photographerID, id)
		}
		out[id] = rec
	}
	return out, nil
}

func (s *Service) bookedSchedule(ctx context.Context, photographerID, scheduleID int64) (schedule.Schedule, error) {
	sc, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return schedule.Schedule{}, fmt.Errorf("get schedule %d: %w", scheduleID, err)
	}
	if !sc.HasPhotographer(photographerID) {
		return schedule.Schedule{}, fmt.Errorf("photographer %d on schedule %d: %w", photographerID, scheduleID, schedule.ErrNotFound)
	}
	return sc, nil
}

// lockDay serializes fan-out writes for one photographer and ceremony date,
// which covers every venue group of that day.
func (s *Service) lockDay(ctx context.Context, photographerID int64, date schedule.Date) (func(), error) {
	key := fmt.Sprintf("%d|%s", photographerID, date)
	for !s.locks.TryLock(key) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
	}
	return func() { s.locks.Unlock(key) }, nil
}

func (s *Service) observe(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.CheckinActions.WithLabelValues(action, result).Inc()
}

func notBefore(now time.Time, prev *time.Time) time.Time {
	if prev != nil && prev.After(now) {
		return *prev
	}
	return now
}

func ptr(t time.Time) *time.Time { return &t }
