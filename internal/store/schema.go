package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS photographers (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT NOT NULL,
		address       TEXT,
		role          TEXT NOT NULL DEFAULT 'main',
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS venues (
		id       BIGSERIAL PRIMARY KEY,
		name     TEXT NOT NULL,
		name_key TEXT NOT NULL UNIQUE,
		address  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id                     BIGSERIAL PRIMARY KEY,
		ceremony_date          DATE NOT NULL,
		ceremony_time          TIME,
		venue_name             TEXT NOT NULL,
		venue_address          TEXT,
		couple                 TEXT,
		main_photographer_id   BIGINT NOT NULL REFERENCES photographers(id),
		sub_photographer_id    BIGINT REFERENCES photographers(id),
		shoot_start_time       TIME,
		arrival_target_time    TIME,
		travel_minutes_default INTEGER,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS schedules_date_idx ON schedules (ceremony_date)`,
	`CREATE TABLE IF NOT EXISTS checkins (
		photographer_id   BIGINT NOT NULL REFERENCES photographers(id),
		schedule_id       BIGINT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		woke_at           TIMESTAMPTZ,
		departed_at       TIMESTAMPTZ,
		arrived_at        TIMESTAMPTZ,
		arrival_photo_ref TEXT,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (photographer_id, schedule_id),
		CONSTRAINT checkins_depart_after_wake CHECK (departed_at IS NULL OR (woke_at IS NOT NULL AND departed_at >= woke_at)),
		CONSTRAINT checkins_arrive_after_depart CHECK (arrived_at IS NULL OR (departed_at IS NOT NULL AND arrived_at >= departed_at)),
		CONSTRAINT checkins_arrival_photo CHECK ((arrived_at IS NULL) = (arrival_photo_ref IS NULL))
	)`,
}

// Migrate creates the tables the repository needs.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
