package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shootday/internal/schedule"
)

// Postgres persists schedules and check-ins through database/sql and pgx.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a repo.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// scheduleColumns resolves the venue address from the registry when the
// schedule row has none.
const scheduleColumns = `
	s.id, s.ceremony_date, to_char(s.ceremony_time, 'HH24:MI'), s.venue_name,
	COALESCE(NULLIF(TRIM(s.venue_address), ''), v.address, ''), COALESCE(s.couple, ''),
	s.main_photographer_id, s.sub_photographer_id,
	to_char(s.shoot_start_time, 'HH24:MI'), to_char(s.arrival_target_time, 'HH24:MI'),
	s.travel_minutes_default`

const scheduleFrom = `
	FROM schedules s
	LEFT JOIN venues v ON v.name_key = lower(regexp_replace(trim(s.venue_name), '\s+', ' ', 'g'))`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (schedule.Schedule, error) {
	var (
		s       schedule.Schedule
		sub     sql.NullInt64
		travel  sql.NullInt64
		cer     sql.NullString
		start   sql.NullString
		arrival sql.NullString
	)
	if err := row.Scan(&s.ID, &s.CeremonyDate, &cer, &s.VenueName, &s.VenueAddress, &s.Couple,
		&s.MainPhotographerID, &sub, &start, &arrival, &travel); err != nil {
		return schedule.Schedule{}, err
	}
	if sub.Valid {
		s.SubPhotographerID = &sub.Int64
	}
	if travel.Valid {
		v := int(travel.Int64)
		s.TravelMinutesDefault = &v
	}
	var err error
	if s.CeremonyTime, err = nullTime(cer); err != nil {
		return schedule.Schedule{}, err
	}
	if s.ShootStartTime, err = nullTime(start); err != nil {
		return schedule.Schedule{}, err
	}
	if s.ArrivalTargetTime, err = nullTime(arrival); err != nil {
		return schedule.Schedule{}, err
	}
	return s, nil
}

func nullTime(ns sql.NullString) (*schedule.TimeOfDay, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := schedule.ParseTimeOfDay(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Postgres) querySchedules(ctx context.Context, where string, args ...any) ([]schedule.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleColumns+scheduleFrom+` WHERE `+where+
		` ORDER BY s.ceremony_date, s.ceremony_time NULLS LAST, s.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []schedule.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// GetSchedule returns a single schedule by id.
func (r *Postgres) GetSchedule(ctx context.Context, id int64) (schedule.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+scheduleFrom+` WHERE s.id = $1`, id)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schedule.Schedule{}, fmt.Errorf("schedule %d: %w", id, schedule.ErrNotFound)
		}
		return schedule.Schedule{}, err
	}
	return s, nil
}

// ListPhotographerSchedules returns schedules where the photographer is main or sub.
func (r *Postgres) ListPhotographerSchedules(ctx context.Context, photographerID int64, from, to schedule.Date) ([]schedule.Schedule, error) {
	return r.querySchedules(ctx,
		`(s.main_photographer_id = $1 OR s.sub_photographer_id = $1) AND s.ceremony_date BETWEEN $2 AND $3`,
		photographerID, from, to)
}

// ListSchedulesBetween returns every schedule with a ceremony date in [from, to].
func (r *Postgres) ListSchedulesBetween(ctx context.Context, from, to schedule.Date) ([]schedule.Schedule, error) {
	return r.querySchedules(ctx, `s.ceremony_date BETWEEN $1 AND $2`, from, to)
}

// HasScheduleOn reports whether any ceremony takes place on date.
func (r *Postgres) HasScheduleOn(ctx context.Context, date schedule.Date) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schedules WHERE ceremony_date = $1)`, date).Scan(&ok)
	return ok, err
}

const checkinColumns = `photographer_id, schedule_id, woke_at, departed_at, arrived_at, COALESCE(arrival_photo_ref, ''), updated_at`

func scanCheckIn(row rowScanner) (schedule.CheckInRecord, error) {
	var rec schedule.CheckInRecord
	err := row.Scan(&rec.PhotographerID, &rec.ScheduleID, &rec.WokeAt, &rec.DepartedAt, &rec.ArrivedAt, &rec.ArrivalPhotoRef, &rec.UpdatedAt)
	return rec, err
}

// ListCheckIns returns the photographer's stored records for the given schedules.
func (r *Postgres) ListCheckIns(ctx context.Context, photographerID int64, scheduleIDs []int64) (map[int64]schedule.CheckInRecord, error) {
	out := make(map[int64]schedule.CheckInRecord, len(scheduleIDs))
	if len(scheduleIDs) == 0 {
		return out, nil
	}
	args := []any{photographerID}
	in := placeholders(&args, scheduleIDs)
	rows, err := r.db.QueryContext(ctx, `SELECT `+checkinColumns+` FROM checkins
		WHERE photographer_id = $1 AND schedule_id IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		out[rec.ScheduleID] = rec
	}
	return out, rows.Err()
}

// ListCheckInsForSchedules returns every photographer's records for the given schedules.
func (r *Postgres) ListCheckInsForSchedules(ctx context.Context, scheduleIDs []int64) (map[schedule.RecordKey]schedule.CheckInRecord, error) {
	out := make(map[schedule.RecordKey]schedule.CheckInRecord)
	if len(scheduleIDs) == 0 {
		return out, nil
	}
	var args []any
	in := placeholders(&args, scheduleIDs)
	rows, err := r.db.QueryContext(ctx, `SELECT `+checkinColumns+` FROM checkins WHERE schedule_id IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		out[rec.Key()] = rec
	}
	return out, rows.Err()
}

// SaveCheckIns upserts the batch in one transaction. Timestamps already stored
// win over incoming ones, so a write can never move a record backward.
func (r *Postgres) SaveCheckIns(ctx context.Context, records []schedule.CheckInRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range records {
		var photo any
		if rec.ArrivalPhotoRef != "" {
			photo = rec.ArrivalPhotoRef
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO checkins (photographer_id, schedule_id, woke_at, departed_at, arrived_at, arrival_photo_ref, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (photographer_id, schedule_id) DO UPDATE SET
				woke_at = COALESCE(checkins.woke_at, EXCLUDED.woke_at),
				departed_at = COALESCE(checkins.departed_at, EXCLUDED.departed_at),
				arrived_at = COALESCE(checkins.arrived_at, EXCLUDED.arrived_at),
				arrival_photo_ref = CASE WHEN checkins.arrived_at IS NULL THEN EXCLUDED.arrival_photo_ref ELSE checkins.arrival_photo_ref END,
				updated_at = EXCLUDED.updated_at
		`, rec.PhotographerID, rec.ScheduleID, rec.WokeAt, rec.DepartedAt, rec.ArrivedAt, photo, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert check-in %d/%d: %w", rec.PhotographerID, rec.ScheduleID, err)
		}
	}
	return tx.Commit()
}

const photographerColumns = `id, name, COALESCE(address, ''), role, username, password_hash, is_admin, active`

func scanPhotographer(row rowScanner) (schedule.Photographer, error) {
	var p schedule.Photographer
	err := row.Scan(&p.ID, &p.Name, &p.Address, &p.Role, &p.Username, &p.PasswordHash, &p.IsAdmin, &p.Active)
	return p, err
}

// GetPhotographer returns a single photographer by id.
func (r *Postgres) GetPhotographer(ctx context.Context, id int64) (schedule.Photographer, error) {
	p, err := scanPhotographer(r.db.QueryRowContext(ctx, `SELECT `+photographerColumns+` FROM photographers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("photographer %d: %w", id, schedule.ErrNotFound)
	}
	return p, err
}

// GetPhotographerByUsername is used by login.
func (r *Postgres) GetPhotographerByUsername(ctx context.Context, username string) (schedule.Photographer, error) {
	p, err := scanPhotographer(r.db.QueryRowContext(ctx, `SELECT `+photographerColumns+` FROM photographers WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("photographer %q: %w", username, schedule.ErrNotFound)
	}
	return p, err
}

// ListPhotographers returns the photographers with the given ids.
func (r *Postgres) ListPhotographers(ctx context.Context, ids []int64) (map[int64]schedule.Photographer, error) {
	out := make(map[int64]schedule.Photographer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var args []any
	in := placeholders(&args, ids)
	rows, err := r.db.QueryContext(ctx, `SELECT `+photographerColumns+` FROM photographers WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPhotographer(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// HasAdmin reports whether an operator account exists.
func (r *Postgres) HasAdmin(ctx context.Context) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM photographers WHERE is_admin)`).Scan(&ok)
	return ok, err
}

// UpsertPhotographer creates or updates a photographer by username. An empty
// password hash keeps the stored one.
func (r *Postgres) UpsertPhotographer(ctx context.Context, p schedule.Photographer) (int64, error) {
	if p.Role == "" {
		p.Role = schedule.RoleMain
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO photographers (name, address, role, username, password_hash, is_admin, active)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO UPDATE SET
			name = EXCLUDED.name,
			address = COALESCE(EXCLUDED.address, photographers.address),
			role = EXCLUDED.role,
			password_hash = COALESCE(NULLIF(EXCLUDED.password_hash, ''), photographers.password_hash),
			is_admin = EXCLUDED.is_admin,
			active = EXCLUDED.active
		RETURNING id
	`, p.Name, p.Address, string(p.Role), p.Username, p.PasswordHash, p.IsAdmin, p.Active).Scan(&id)
	return id, err
}

// UpsertVenue creates or updates a registry venue by normalized name.
func (r *Postgres) UpsertVenue(ctx context.Context, v schedule.Venue) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO venues (name, name_key, address)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (name_key) DO UPDATE SET
			name = EXCLUDED.name,
			address = COALESCE(EXCLUDED.address, venues.address)
		RETURNING id
	`, strings.TrimSpace(v.Name), schedule.NormalizeVenue(v.Name), v.Address).Scan(&id)
	return id, err
}

// AddSchedule inserts a schedule and returns its id.
func (r *Postgres) AddSchedule(ctx context.Context, s schedule.Schedule) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO schedules (ceremony_date, ceremony_time, venue_name, venue_address, couple,
			main_photographer_id, sub_photographer_id, shoot_start_time, arrival_target_time, travel_minutes_default)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10)
		RETURNING id
	`, s.CeremonyDate, timeArg(s.CeremonyTime), s.VenueName, s.VenueAddress, s.Couple,
		s.MainPhotographerID, s.SubPhotographerID, timeArg(s.ShootStartTime), timeArg(s.ArrivalTargetTime),
		s.TravelMinutesDefault).Scan(&id)
	return id, err
}

func timeArg(t *schedule.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return *t
}

// placeholders appends ids to args and returns the matching "$n, $m" list.
func placeholders(args *[]any, ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		*args = append(*args, id)
		parts = append(parts, fmt.Sprintf("$%d", len(*args)))
	}
	return strings.Join(parts, ", ")
}

// Ping is used by the health endpoint.
func (r *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}
