package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"shootday/internal/schedule"
)

// Memory is an in-process repository used by tests and STORE_BACKEND=memory.
// SaveCheckIns applies a whole batch under one lock.
type Memory struct {
	mu            sync.RWMutex
	schedules     map[int64]schedule.Schedule
	photographers map[int64]schedule.Photographer
	venues        map[string]schedule.Venue
	checkins      map[schedule.RecordKey]schedule.CheckInRecord
	nextID        int64
}

// NewMemory returns an empty repository.
func NewMemory() *Memory {
	return &Memory{
		schedules:     make(map[int64]schedule.Schedule),
		photographers: make(map[int64]schedule.Photographer),
		venues:        make(map[string]schedule.Venue),
		checkins:      make(map[schedule.RecordKey]schedule.CheckInRecord),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// AddSchedule stores s, assigning an id when it has none.
func (m *Memory) AddSchedule(_ context.Context, s schedule.Schedule) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.id()
	} else if s.ID > m.nextID {
		m.nextID = s.ID
	}
	m.schedules[s.ID] = s
	return s.ID, nil
}

// UpsertPhotographer stores p keyed by username.
func (m *Memory) UpsertPhotographer(_ context.Context, p schedule.Photographer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.photographers {
		if p.Username != "" && existing.Username == p.Username {
			p.ID = id
			if p.PasswordHash == "" {
				p.PasswordHash = existing.PasswordHash
			}
			m.photographers[id] = p
			return id, nil
		}
	}
	if p.ID == 0 {
		p.ID = m.id()
	} else if p.ID > m.nextID {
		m.nextID = p.ID
	}
	m.photographers[p.ID] = p
	return p.ID, nil
}

// UpsertVenue stores v keyed by its normalized name.
func (m *Memory) UpsertVenue(_ context.Context, v schedule.Venue) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := schedule.NormalizeVenue(v.Name)
	if existing, ok := m.venues[key]; ok {
		v.ID = existing.ID
		if v.Address == "" {
			v.Address = existing.Address
		}
	} else {
		v.ID = m.id()
	}
	m.venues[key] = v
	return v.ID, nil
}

func (m *Memory) GetSchedule(_ context.Context, id int64) (schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return schedule.Schedule{}, fmt.Errorf("schedule %d: %w", id, schedule.ErrNotFound)
	}
	return m.withVenueAddress(s), nil
}

func (m *Memory) ListPhotographerSchedules(_ context.Context, photographerID int64, from, to schedule.Date) ([]schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.Schedule
	for _, s := range m.schedules {
		if s.HasPhotographer(photographerID) && inRange(s.CeremonyDate, from, to) {
			out = append(out, m.withVenueAddress(s))
		}
	}
	sortSchedules(out)
	return out, nil
}

func (m *Memory) ListSchedulesBetween(_ context.Context, from, to schedule.Date) ([]schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.Schedule
	for _, s := range m.schedules {
		if inRange(s.CeremonyDate, from, to) {
			out = append(out, m.withVenueAddress(s))
		}
	}
	sortSchedules(out)
	return out, nil
}

func (m *Memory) HasScheduleOn(_ context.Context, date schedule.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.schedules {
		if s.CeremonyDate == date {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListCheckIns(_ context.Context, photographerID int64, scheduleIDs []int64) (map[int64]schedule.CheckInRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]schedule.CheckInRecord, len(scheduleIDs))
	for _, id := range scheduleIDs {
		if rec, ok := m.checkins[schedule.RecordKey{PhotographerID: photographerID, ScheduleID: id}]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (m *Memory) ListCheckInsForSchedules(_ context.Context, scheduleIDs []int64) (map[schedule.RecordKey]schedule.CheckInRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[int64]struct{}, len(scheduleIDs))
	for _, id := range scheduleIDs {
		want[id] = struct{}{}
	}
	out := make(map[schedule.RecordKey]schedule.CheckInRecord)
	for k, rec := range m.checkins {
		if _, ok := want[k.ScheduleID]; ok {
			out[k] = rec
		}
	}
	return out, nil
}

// SaveCheckIns merges the batch into stored records. A timestamp that is
// already set is never replaced.
func (m *Memory) SaveCheckIns(_ context.Context, records []schedule.CheckInRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := make([]schedule.CheckInRecord, 0, len(records))
	for _, rec := range records {
		if _, ok := m.schedules[rec.ScheduleID]; !ok {
			return fmt.Errorf("save check-in: schedule %d: %w", rec.ScheduleID, schedule.ErrNotFound)
		}
		next := mergeRecord(m.checkins[rec.Key()], rec)
		if err := next.Validate(); err != nil {
			return fmt.Errorf("save check-in %d/%d: %w", rec.PhotographerID, rec.ScheduleID, err)
		}
		merged = append(merged, next)
	}
	for _, rec := range merged {
		m.checkins[rec.Key()] = rec
	}
	return nil
}

func (m *Memory) GetPhotographer(_ context.Context, id int64) (schedule.Photographer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.photographers[id]
	if !ok {
		return schedule.Photographer{}, fmt.Errorf("photographer %d: %w", id, schedule.ErrNotFound)
	}
	return p, nil
}

func (m *Memory) GetPhotographerByUsername(_ context.Context, username string) (schedule.Photographer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.photographers {
		if p.Username == username {
			return p, nil
		}
	}
	return schedule.Photographer{}, fmt.Errorf("photographer %q: %w", username, schedule.ErrNotFound)
}

func (m *Memory) ListPhotographers(_ context.Context, ids []int64) (map[int64]schedule.Photographer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]schedule.Photographer, len(ids))
	for _, id := range ids {
		if p, ok := m.photographers[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *Memory) HasAdmin(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.photographers {
		if p.IsAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) withVenueAddress(s schedule.Schedule) schedule.Schedule {
	if strings.TrimSpace(s.VenueAddress) != "" {
		return s
	}
	if v, ok := m.venues[s.VenueKey()]; ok {
		s.VenueAddress = v.Address
	}
	return s
}

func mergeRecord(old, next schedule.CheckInRecord) schedule.CheckInRecord {
	out := next
	if old.WokeAt != nil {
		out.WokeAt = old.WokeAt
	}
	if old.DepartedAt != nil {
		out.DepartedAt = old.DepartedAt
	}
	if old.ArrivedAt != nil {
		out.ArrivedAt = old.ArrivedAt
		out.ArrivalPhotoRef = old.ArrivalPhotoRef
	}
	return out
}

func inRange(d, from, to schedule.Date) bool {
	return !d.Before(from) && !d.After(to)
}

func sortSchedules(list []schedule.Schedule) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if c := a.CeremonyDate.Compare(b.CeremonyDate); c != 0 {
			return c < 0
		}
		at, bt := timeKey(a), timeKey(b)
		if at != bt {
			return at < bt
		}
		return a.ID < b.ID
	})
}

func timeKey(s schedule.Schedule) int {
	if s.CeremonyTime != nil {
		return int(*s.CeremonyTime)
	}
	return 24 * 60
}
