package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shootday/internal/schedule"
)

func TestMemoryVenueAddressFallback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.UpsertVenue(ctx, schedule.Venue{Name: "Grand Hall", Address: "Seoul Gangnam-gu 1"})
	require.NoError(t, err)

	day := schedule.Date{Year: 2026, Month: time.May, Day: 9}
	id, err := m.AddSchedule(ctx, schedule.Schedule{CeremonyDate: day, VenueName: " grand  hall", MainPhotographerID: 1})
	require.NoError(t, err)
	withAddr, err := m.AddSchedule(ctx, schedule.Schedule{CeremonyDate: day, VenueName: "Grand Hall", VenueAddress: "explicit", MainPhotographerID: 1})
	require.NoError(t, err)

	got, err := m.GetSchedule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Seoul Gangnam-gu 1", got.VenueAddress)

	got, err = m.GetSchedule(ctx, withAddr)
	require.NoError(t, err)
	assert.Equal(t, "explicit", got.VenueAddress)

	_, err = m.GetSchedule(ctx, 999)
	assert.ErrorIs(t, err, schedule.ErrNotFound)
}

func TestMemorySaveKeepsStoredTimestamps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := schedule.Date{Year: 2026, Month: time.May, Day: 9}
	id, err := m.AddSchedule(ctx, schedule.Schedule{CeremonyDate: day, VenueName: "Hall", MainPhotographerID: 7})
	require.NoError(t, err)

	first := time.Date(2026, 5, 9, 7, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	rec := schedule.NewRecord(7, id)
	rec.WokeAt = &first
	require.NoError(t, m.SaveCheckIns(ctx, []schedule.CheckInRecord{rec}))

	rec.WokeAt = &later
	require.NoError(t, m.SaveCheckIns(ctx, []schedule.CheckInRecord{rec}))

	got, err := m.ListCheckIns(ctx, 7, []int64{id})
	require.NoError(t, err)
	require.Contains(t, got, id)
	assert.True(t, got[id].WokeAt.Equal(first))
}

func TestMemorySaveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := schedule.Date{Year: 2026, Month: time.May, Day: 9}
	id, err := m.AddSchedule(ctx, schedule.Schedule{CeremonyDate: day, VenueName: "Hall", MainPhotographerID: 7})
	require.NoError(t, err)

	now := time.Date(2026, 5, 9, 7, 0, 0, 0, time.UTC)
	good := schedule.NewRecord(7, id)
	good.WokeAt = &now
	bad := schedule.NewRecord(7, id+100)
	bad.WokeAt = &now

	err = m.SaveCheckIns(ctx, []schedule.CheckInRecord{good, bad})
	require.ErrorIs(t, err, schedule.ErrNotFound)

	got, err := m.ListCheckIns(ctx, 7, []int64{id})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryListOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := schedule.Date{Year: 2026, Month: time.May, Day: 9}
	late := schedule.NewTimeOfDay(15, 0)
	early := schedule.NewTimeOfDay(11, 0)
	sub := int64(2)

	a, _ := m.AddSchedule(ctx, schedule.Schedule{CeremonyDate: day, CeremonyTime: &late, VenueName: "A", MainPhotographerID: 1})
	b, _ := m.AddSchedule(ctx, schedule.Schedule{CeremonyDate: day, CeremonyTime: &early, VenueName: "B", MainPhotographerID: 3, SubPhotographerID: &sub})
	_, _ = m.AddSchedule(ctx, schedule.Schedule{CeremonyDate: day.AddDays(10), VenueName: "C", MainPhotographerID: 1})

	all, err := m.ListSchedulesBetween(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b, all[0].ID)
	assert.Equal(t, a, all[1].ID)

	mine, err := m.ListPhotographerSchedules(ctx, 2, day, day.AddDays(6))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, b, mine[0].ID)

	ok, err := m.HasScheduleOn(ctx, day.AddDays(1))
	require.NoError(t, err)
	assert.False(t, ok)
}
