package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"shootday/internal/auth"
	"shootday/internal/schedule"
)

// SeedFile is the JSON layout accepted by dbtool. Rows keep their
// spreadsheet headers.
type SeedFile struct {
	Photographers []Row `json:"photographers"`
	Venues        []Row `json:"venues"`
	Schedules     []Row `json:"schedules"`
}

// DecodeSeedFile reads a SeedFile.
func DecodeSeedFile(r io.Reader) (SeedFile, error) {
	var f SeedFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return SeedFile{}, fmt.Errorf("decode seed file: %w", err)
	}
	return f, nil
}

// Seeder is the write access seeding needs.
type Seeder interface {
	UpsertPhotographer(ctx context.Context, p schedule.Photographer) (int64, error)
	UpsertVenue(ctx context.Context, v schedule.Venue) (int64, error)
	AddSchedule(ctx context.Context, s schedule.Schedule) (int64, error)
}

// Skipped is one row left out of a seed run.
type Skipped struct {
	Section string
	Index   int
	Err     error
}

// SeedReport counts what a seed run stored.
type SeedReport struct {
	Photographers int
	Venues        int
	Schedules     int
	Skipped       []Skipped
}

// Seed stores photographers, then venues, then schedules. Invalid rows are
// skipped and reported; storage errors abort the run.
func Seed(ctx context.Context, repo Seeder, f SeedFile) (SeedReport, error) {
	var rep SeedReport
	byName := make(map[string]int64)

	for i, row := range f.Photographers {
		d, err := MapPhotographerRow(row)
		if err != nil {
			rep.Skipped = append(rep.Skipped, Skipped{Section: "photographers", Index: i, Err: err})
			continue
		}
		p := schedule.Photographer{Name: d.Name, Address: d.Address, Role: d.Role, Username: d.Username, Active: true}
		if pw := strings.TrimSpace(row["password"]); pw != "" {
			if p.PasswordHash, err = auth.HashPassword(pw); err != nil {
				return rep, err
			}
		}
		id, err := repo.UpsertPhotographer(ctx, p)
		if err != nil {
			return rep, fmt.Errorf("seed photographer %q: %w", d.Name, err)
		}
		byName[nameKey(d.Name)] = id
		rep.Photographers++
	}

	for i, row := range f.Venues {
		v := canonical(row, scheduleAliases)
		if v[fieldVenue] == "" {
			rep.Skipped = append(rep.Skipped, Skipped{Section: "venues", Index: i, Err: &RowErrors{Fields: map[string]string{fieldVenue: "required"}}})
			continue
		}
		if _, err := repo.UpsertVenue(ctx, schedule.Venue{Name: v[fieldVenue], Address: v[fieldVenueAddress]}); err != nil {
			return rep, fmt.Errorf("seed venue %q: %w", v[fieldVenue], err)
		}
		rep.Venues++
	}

	for i, row := range f.Schedules {
		d, err := MapScheduleRow(row)
		if err != nil {
			rep.Skipped = append(rep.Skipped, Skipped{Section: "schedules", Index: i, Err: err})
			continue
		}
		mainID, ok := byName[nameKey(d.MainPhotographer)]
		if !ok {
			rep.Skipped = append(rep.Skipped, Skipped{Section: "schedules", Index: i,
				Err: &RowErrors{Fields: map[string]string{fieldMain: fmt.Sprintf("unknown photographer %q", d.MainPhotographer)}}})
			continue
		}
		var subID *int64
		if d.SubPhotographer != "" {
			id, ok := byName[nameKey(d.SubPhotographer)]
			if !ok {
				rep.Skipped = append(rep.Skipped, Skipped{Section: "schedules", Index: i,
					Err: &RowErrors{Fields: map[string]string{fieldSub: fmt.Sprintf("unknown photographer %q", d.SubPhotographer)}}})
				continue
			}
			subID = &id
		}
		if _, err := repo.AddSchedule(ctx, d.Schedule(mainID, subID)); err != nil {
			return rep, fmt.Errorf("seed schedule row %d: %w", i, err)
		}
		rep.Schedules++
	}
	return rep, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}
