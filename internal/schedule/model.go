package schedule

import (
	"strings"
	"time"
)

const (
	// ShootLead is how long before the ceremony shooting starts when no explicit start is set.
	ShootLead = 60 * time.Minute
	// ArrivalLead is how long before shooting starts the photographer should be on site.
	ArrivalLead = 30 * time.Minute
)

// Schedule is one booked wedding shoot.
type Schedule struct {
	ID                   int64      `json:"id"`
	CeremonyDate         Date       `json:"ceremony_date"`
	CeremonyTime         *TimeOfDay `json:"ceremony_time,omitempty"`
	VenueName            string     `json:"venue_name"`
	VenueAddress         string     `json:"venue_address,omitempty"`
	Couple               string     `json:"couple,omitempty"`
	MainPhotographerID   int64      `json:"main_photographer_id"`
	SubPhotographerID    *int64     `json:"sub_photographer_id,omitempty"`
	ShootStartTime       *TimeOfDay `json:"shoot_start_time,omitempty"`
	ArrivalTargetTime    *TimeOfDay `json:"arrival_target_time,omitempty"`
	TravelMinutesDefault *int       `json:"travel_minutes_default,omitempty"`
}

// ShootStartAt returns the explicit shoot start, or the ceremony time minus ShootLead.
func (s Schedule) ShootStartAt(loc *time.Location) (time.Time, bool) {
	if s.ShootStartTime != nil {
		return s.CeremonyDate.At(*s.ShootStartTime, loc), true
	}
	if s.CeremonyTime != nil {
		return s.CeremonyDate.At(*s.CeremonyTime, loc).Add(-ShootLead), true
	}
	return time.Time{}, false
}

// ArrivalTargetAt returns the explicit arrival target, or the shoot start minus ArrivalLead.
// ok is false when the schedule carries no time at all.
func (s Schedule) ArrivalTargetAt(loc *time.Location) (time.Time, bool) {
	if s.ArrivalTargetTime != nil {
		return s.CeremonyDate.At(*s.ArrivalTargetTime, loc), true
	}
	start, ok := s.ShootStartAt(loc)
	if !ok {
		return time.Time{}, false
	}
	return start.Add(-ArrivalLead), true
}

// PhotographerIDs lists main then sub.
func (s Schedule) PhotographerIDs() []int64 {
	ids := []int64{s.MainPhotographerID}
	if s.SubPhotographerID != nil && *s.SubPhotographerID != s.MainPhotographerID {
		ids = append(ids, *s.SubPhotographerID)
	}
	return ids
}

// HasPhotographer reports whether pid is booked as main or sub.
func (s Schedule) HasPhotographer(pid int64) bool {
	return s.MainPhotographerID == pid || (s.SubPhotographerID != nil && *s.SubPhotographerID == pid)
}

// RoleOf returns "main" or "sub" for a booked photographer.
func (s Schedule) RoleOf(pid int64) Role {
	if s.MainPhotographerID == pid {
		return RoleMain
	}
	return RoleSub
}

// VenueKey is the grouping form of a venue name: trimmed, inner whitespace
// collapsed and case folded.
func (s Schedule) VenueKey() string {
	return NormalizeVenue(s.VenueName)
}

// NormalizeVenue folds a free-text venue name into its grouping key.
func NormalizeVenue(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// SameVenueGroup reports whether two schedules share a ceremony date and venue.
func SameVenueGroup(a, b Schedule) bool {
	return a.CeremonyDate == b.CeremonyDate && a.VenueKey() == b.VenueKey()
}

// Role is the capability a photographer fills on one schedule.
type Role string

const (
	RoleMain Role = "main"
	RoleSub  Role = "sub"
)

// Photographer is a field photographer or an operator account.
type Photographer struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	Role         Role   `json:"role,omitempty"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	IsAdmin      bool   `json:"is_admin"`
	Active       bool   `json:"active"`
}

// Venue is a wedding hall from the shared registry.
type Venue struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}
