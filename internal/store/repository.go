package store

import (
	"context"

	"shootday/internal/schedule"
)

// Repository is the full storage surface shared by the Postgres and
// in-memory backends.
type Repository interface {
	AddSchedule(ctx context.Context, s schedule.Schedule) (int64, error)
	UpsertPhotographer(ctx context.Context, p schedule.Photographer) (int64, error)
	UpsertVenue(ctx context.Context, v schedule.Venue) (int64, error)

	GetSchedule(ctx context.Context, id int64) (schedule.Schedule, error)
	ListPhotographerSchedules(ctx context.Context, photographerID int64, from, to schedule.Date) ([]schedule.Schedule, error)
	ListSchedulesBetween(ctx context.Context, from, to schedule.Date) ([]schedule.Schedule, error)
	HasScheduleOn(ctx context.Context, date schedule.Date) (bool, error)

	ListCheckIns(ctx context.Context, photographerID int64, scheduleIDs []int64) (map[int64]schedule.CheckInRecord, error)
	ListCheckInsForSchedules(ctx context.Context, scheduleIDs []int64) (map[schedule.RecordKey]schedule.CheckInRecord, error)
	SaveCheckIns(ctx context.Context, records []schedule.CheckInRecord) error

	GetPhotographer(ctx context.Context, id int64) (schedule.Photographer, error)
	GetPhotographerByUsername(ctx context.Context, username string) (schedule.Photographer, error)
	ListPhotographers(ctx context.Context, ids []int64) (map[int64]schedule.Photographer, error)
	HasAdmin(ctx context.Context) (bool, error)
}

var (
	_ Repository = (*Memory)(nil)
	_ Repository = (*Postgres)(nil)
)
