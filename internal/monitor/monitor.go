// Package monitor recomputes delay alerts from schedules, check-in records and
// travel estimates. Nothing it produces is persisted.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shootday/internal/metrics"
	"shootday/internal/schedule"
	"shootday/internal/traveltime"
)

// Repository is the read access the monitor needs.
type Repository interface {
	ListSchedulesBetween(ctx context.Context, from, to schedule.Date) ([]schedule.Schedule, error)
	ListCheckInsForSchedules(ctx context.Context, scheduleIDs []int64) (map[schedule.RecordKey]schedule.CheckInRecord, error)
	ListPhotographers(ctx context.Context, ids []int64) (map[int64]schedule.Photographer, error)
	HasScheduleOn(ctx context.Context, date schedule.Date) (bool, error)
}

// Estimator is satisfied by *traveltime.Cache.
type Estimator interface {
	Estimate(ctx context.Context, origin, destination string) traveltime.Estimate
}

// Config holds the alert policy.
type Config struct {
	WakeBuffer           time.Duration
	Grace                time.Duration
	LookaheadDays        int
	DefaultTravelMinutes int
	ActiveStart          time.Duration
	ActiveEnd            time.Duration
	Concurrency          int
}

// Row is one monitored transition of one photographer on one schedule.
type Row struct {
	PhotographerID   int64             `json:"photographer_id"`
	PhotographerName string            `json:"photographer_name"`
	Role             schedule.Role     `json:"role"`
	ScheduleID       int64             `json:"schedule_id"`
	CeremonyDate     schedule.Date     `json:"ceremony_date"`
	VenueName        string            `json:"venue_name"`
	Transition       Transition        `json:"transition"`
	State            AlertState        `json:"state"`
	Target           time.Time         `json:"target"`
	Actual           *time.Time        `json:"actual,omitempty"`
	TravelMinutes    int               `json:"travel_minutes"`
	TravelSource     traveltime.Source `json:"travel_source"`
}

// DayStatus is the aggregated state of one photographer on one day.
type DayStatus struct {
	PhotographerID int64         `json:"photographer_id"`
	Date           schedule.Date `json:"date"`
	State          AlertState    `json:"state"`
	Rows           []Row         `json:"rows"`
}

// Keepalive tells the operational layer whether to keep the service warm.
type Keepalive struct {
	Needed        bool `json:"needed"`
	InWindow      bool `json:"in_window"`
	ScheduleToday bool `json:"schedule_today"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	repo Repository
	est  Estimator
	loc  *time.Location
	cfg  Config
	log  *zap.Logger
}

// New creates a monitor evaluating ceremony dates in loc.
func New(repo Repository, est Estimator, loc *time.Location, cfg Config, log *zap.Logger) *Monitor {
	if cfg.WakeBuffer <= 0 {
		cfg.WakeBuffer = 30 * time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 15 * time.Minute
	}
	if cfg.LookaheadDays < 0 {
		cfg.LookaheadDays = 0
	}
	if cfg.DefaultTravelMinutes <= 0 {
		cfg.DefaultTravelMinutes = 60
	}
	if cfg.ActiveStart == 0 && cfg.ActiveEnd == 0 {
		cfg.ActiveStart, cfg.ActiveEnd = 6*time.Hour, 17*time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{repo: repo, est: est, loc: loc, cfg: cfg, log: log}
}

// Feed returns warning and delayed rows for today through the lookahead
// window, sorted by target time.
func (m *Monitor) Feed(ctx context.Context, now time.Time) ([]Row, error) {
	today := schedule.DateOf(now.In(m.loc))
	rows, err := m.evaluate(ctx, now, today, today.AddDays(m.cfg.LookaheadDays), 0)
	if err != nil {
		return nil, fmt.Errorf("alert feed: %w", err)
	}

	counts := map[AlertState]int{StateWarning: 0, StateDelayed: 0}
	out := rows[:0]
	for _, r := range rows {
		if r.State.Alerting() {
			out = append(out, r)
			counts[r.State]++
		}
	}
	for st, n := range counts {
		metrics.AlertRows.WithLabelValues(string(st)).Set(float64(n))
	}
	return out, nil
}

// DayState aggregates every transition of the photographer on date into the
// worst state.
func (m *Monitor) DayState(ctx context.Context, photographerID int64, date schedule.Date, now time.Time) (DayStatus, error) {
	rows, err := m.evaluate(ctx, now, date, date, photographerID)
	if err != nil {
		return DayStatus{}, fmt.Errorf("day state: %w", err)
	}
	states := make([]AlertState, 0, len(rows))
	for _, r := range rows {
		states = append(states, r.State)
	}
	return DayStatus{
		PhotographerID: photographerID,
		Date:           date,
		State:          Worst(states...),
		Rows:           rows,
	}, nil
}

// KeepaliveNeeded is true inside the active window on a day with any ceremony.
// Both window bounds are inclusive.
func (m *Monitor) KeepaliveNeeded(ctx context.Context, now time.Time) (Keepalive, error) {
	local := now.In(m.loc)
	today := schedule.DateOf(local)
	sinceMidnight := local.Sub(today.Midnight(m.loc))

	k := Keepalive{InWindow: sinceMidnight >= m.cfg.ActiveStart && sinceMidnight <= m.cfg.ActiveEnd}
	has, err := m.repo.HasScheduleOn(ctx, today)
	if err != nil {
		return Keepalive{}, fmt.Errorf("keepalive: %w", err)
	}
	k.ScheduleToday = has
	k.Needed = k.InWindow && has
	return k, nil
}

// Prewarm looks up every (photographer, venue) pair in the feed window so
// later feed reads hit the cache. It returns the number of pairs.
func (m *Monitor) Prewarm(ctx context.Context, now time.Time) (int, error) {
	today := schedule.DateOf(now.In(m.loc))
	list, err := m.repo.ListSchedulesBetween(ctx, today, today.AddDays(m.cfg.LookaheadDays))
	if err != nil {
		return 0, fmt.Errorf("prewarm: %w", err)
	}
	people, err := m.photographers(ctx, list)
	if err != nil {
		return 0, fmt.Errorf("prewarm: %w", err)
	}
	pairs := m.estimateAll(ctx, list, people)
	m.log.Info("travel cache prewarmed", zap.Int("pairs", len(pairs)), zap.Int("schedules", len(list)))
	return len(pairs), nil
}

type pair struct{ origin, destination string }

// evaluate builds every row in [from, to]. photographerID 0 means everyone.
func (m *Monitor) evaluate(ctx context.Context, now time.Time, from, to schedule.Date, photographerID int64) ([]Row, error) {
	list, err := m.repo.ListSchedulesBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if photographerID != 0 {
		mine := list[:0]
		for _, sc := range list {
			if sc.HasPhotographer(photographerID) {
				mine = append(mine, sc)
			}
		}
		list = mine
	}
	if len(list) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(list))
	for _, sc := range list {
		ids = append(ids, sc.ID)
	}
	records, err := m.repo.ListCheckInsForSchedules(ctx, ids)
	if err != nil {
		return nil, err
	}
	people, err := m.photographers(ctx, list)
	if err != nil {
		return nil, err
	}
	estimates := m.estimateAll(ctx, list, people)

	var rows []Row
	for _, sc := range list {
		arrival, ok := sc.ArrivalTargetAt(m.loc)
		if !ok {
			continue
		}
		for _, pid := range sc.PhotographerIDs() {
			if photographerID != 0 && pid != photographerID {
				continue
			}
			p := people[pid]
			def := m.cfg.DefaultTravelMinutes
			if sc.TravelMinutesDefault != nil && *sc.TravelMinutesDefault > 0 {
				def = *sc.TravelMinutesDefault
			}
			est, found := estimates[traveltime.Key(p.Address, sc.VenueAddress)]
			if !found {
				est = traveltime.Estimate{Source: traveltime.SourceFallback}
			}
			travel := est.Or(def)
			targets := ComputeTargets(arrival, travel, m.cfg.WakeBuffer)

			rec, ok := records[schedule.RecordKey{PhotographerID: pid, ScheduleID: sc.ID}]
			if !ok {
				rec = schedule.NewRecord(pid, sc.ID)
			}
			if err := rec.Validate(); err != nil {
				m.log.Warn("skipping corrupt check-in record",
					zap.Int64("photographer_id", pid), zap.Int64("schedule_id", sc.ID), zap.Error(err))
				continue
			}

			actuals := map[Transition]*time.Time{
				TransitionWake:      rec.WokeAt,
				TransitionDeparture: rec.DepartedAt,
				TransitionArrival:   rec.ArrivedAt,
			}
			for _, tr := range []Transition{TransitionWake, TransitionDeparture, TransitionArrival} {
				target := targets.For(tr)
				rows = append(rows, Row{
					PhotographerID:   pid,
					PhotographerName: p.Name,
					Role:             sc.RoleOf(pid),
					ScheduleID:       sc.ID,
					CeremonyDate:     sc.CeremonyDate,
					VenueName:        sc.VenueName,
					Transition:       tr,
					State:            Classify(target, actuals[tr], now, m.cfg.Grace),
					Target:           target.In(m.loc),
					Actual:           actuals[tr],
					TravelMinutes:    travel,
					TravelSource:     est.Source,
				})
			}
		}
	}
	sortRows(rows)
	return rows, nil
}

func (m *Monitor) photographers(ctx context.Context, list []schedule.Schedule) (map[int64]schedule.Photographer, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, sc := range list {
		for _, pid := range sc.PhotographerIDs() {
			if _, ok := seen[pid]; !ok {
				seen[pid] = struct{}{}
				ids = append(ids, pid)
			}
		}
	}
	return m.repo.ListPhotographers(ctx, ids)
}

// estimateAll resolves each distinct address pair once, with bounded concurrency.
// Results are keyed by traveltime.Key. Pairs missing either address are left
// out and fall back.
func (m *Monitor) estimateAll(ctx context.Context, list []schedule.Schedule, people map[int64]schedule.Photographer) map[string]traveltime.Estimate {
	want := make(map[string]pair)
	for _, sc := range list {
		if traveltime.Normalize(sc.VenueAddress) == "" {
			continue
		}
		for _, pid := range sc.PhotographerIDs() {
			addr := people[pid].Address
			if traveltime.Normalize(addr) == "" {
				continue
			}
			want[traveltime.Key(addr, sc.VenueAddress)] = pair{addr, sc.VenueAddress}
		}
	}

	var (
		mu  sync.Mutex
		out = make(map[string]traveltime.Estimate, len(want))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for key, pr := range want {
		key, pr := key, pr
		g.Go(func() error {
			est := m.est.Estimate(gctx, pr.origin, pr.destination)
			mu.Lock()
			out[key] = est
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Target.Equal(b.Target) {
			return a.Target.Before(b.Target)
		}
		if a.ScheduleID != b.ScheduleID {
			return a.ScheduleID < b.ScheduleID
		}
		if a.PhotographerID != b.PhotographerID {
			return a.PhotographerID < b.PhotographerID
		}
		return a.Transition.order() < b.Transition.order()
	})
}
