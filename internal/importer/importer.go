// Package importer maps loosely typed spreadsheet rows onto schedule and
// photographer drafts. It performs no I/O.
package importer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"shootday/internal/schedule"
)

// Row is one spreadsheet row keyed by its header cell.
type Row map[string]string

// RowErrors collects per-field problems of one row.
type RowErrors struct {
	Fields map[string]string
}

func (e *RowErrors) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "invalid row: " + strings.Join(parts, "; ")
}

func (e *RowErrors) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *RowErrors) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ScheduleDraft is a validated schedule row. Photographers are still names;
// the caller resolves them to accounts.
type ScheduleDraft struct {
	CeremonyDate         schedule.Date
	CeremonyTime         *schedule.TimeOfDay
	ShootStartTime       *schedule.TimeOfDay
	VenueName            string
	VenueAddress         string
	Couple               string
	MainPhotographer     string
	SubPhotographer      string
	TravelMinutesDefault *int
}

// Schedule builds the domain schedule once photographer ids are known.
func (d ScheduleDraft) Schedule(mainID int64, subID *int64) schedule.Schedule {
	return schedule.Schedule{
		CeremonyDate:         d.CeremonyDate,
		CeremonyTime:         d.CeremonyTime,
		ShootStartTime:       d.ShootStartTime,
		VenueName:            d.VenueName,
		VenueAddress:         d.VenueAddress,
		Couple:               d.Couple,
		MainPhotographerID:   mainID,
		SubPhotographerID:    subID,
		TravelMinutesDefault: d.TravelMinutesDefault,
	}
}

// PhotographerDraft is a validated photographer roster row.
type PhotographerDraft struct {
	Name     string
	Address  string
	Role     schedule.Role
	Username string
}

const (
	fieldDate          = "date"
	fieldTime          = "time"
	fieldShootStart    = "shoot_start"
	fieldVenue         = "venue"
	fieldVenueAddress  = "venue_address"
	fieldCouple        = "couple"
	fieldPhotographers = "photographers"
	fieldMain          = "main"
	fieldSub           = "sub"
	fieldTravelMinutes = "travel_minutes"
	fieldName          = "name"
	fieldAddress       = "address"
	fieldRole          = "role"
	fieldUsername      = "username"
)

var scheduleAliases = map[string]string{
	"date": fieldDate, "ceremonydate": fieldDate, "날짜": fieldDate, "예식일": fieldDate, "일자": fieldDate,
	"time": fieldTime, "ceremonytime": fieldTime, "시간": fieldTime, "예식시간": fieldTime,
	"shootstart": fieldShootStart, "shootstarttime": fieldShootStart, "촬영시간": fieldShootStart, "촬영시작": fieldShootStart,
	"venue": fieldVenue, "venuename": fieldVenue, "hall": fieldVenue, "웨딩홀": fieldVenue, "예식장": fieldVenue, "장소": fieldVenue,
	"venueaddress": fieldVenueAddress, "주소": fieldVenueAddress, "웨딩홀주소": fieldVenueAddress,
	"couple": fieldCouple, "커플": fieldCouple, "신랑신부": fieldCouple, "고객": fieldCouple,
	"photographers": fieldPhotographers, "photographer": fieldPhotographers, "촬영자": fieldPhotographers, "작가": fieldPhotographers,
	"main": fieldMain, "mainphotographer": fieldMain, "촬영자(메인)": fieldMain, "메인": fieldMain,
	"sub": fieldSub, "subphotographer": fieldSub, "촬영자(서브)": fieldSub, "서브": fieldSub,
	"travelminutes": fieldTravelMinutes, "defaulttravelminutes": fieldTravelMinutes, "이동시간": fieldTravelMinutes, "기본이동시간": fieldTravelMinutes,
}

var photographerAliases = map[string]string{
	"name": fieldName, "이름": fieldName, "성명": fieldName, "작가명": fieldName, "촬영자": fieldName, "작가": fieldName,
	"address": fieldAddress, "home": fieldAddress, "거주지": fieldAddress, "주소": fieldAddress, "사는곳": fieldAddress,
	"role": fieldRole, "촬영": fieldRole, "역할": fieldRole, "구분": fieldRole,
	"username": fieldUsername, "login": fieldUsername, "아이디": fieldUsername,
}

// canonical folds header variants onto field names. Unknown headers are dropped.
func canonical(row Row, aliases map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for header, value := range row {
		key := strings.ToLower(strings.Join(strings.Fields(header), ""))
		key = strings.ReplaceAll(key, "_", "")
		field, ok := aliases[key]
		if !ok {
			continue
		}
		value = cleanName(value)
		if value == "" {
			continue
		}
		out[field] = value
	}
	return out
}

// MapScheduleRow validates one schedule row. The returned error is a *RowErrors.
func MapScheduleRow(row Row) (ScheduleDraft, error) {
	f := canonical(row, scheduleAliases)
	errs := &RowErrors{}
	var d ScheduleDraft

	if v, ok := f[fieldDate]; !ok {
		errs.add(fieldDate, "required")
	} else if date, err := ParseDate(v); err != nil {
		errs.add(fieldDate, err.Error())
	} else {
		d.CeremonyDate = date
	}

	d.CeremonyTime = optionalTime(f, fieldTime, errs)
	d.ShootStartTime = optionalTime(f, fieldShootStart, errs)

	d.VenueName = f[fieldVenue]
	if d.VenueName == "" {
		errs.add(fieldVenue, "required")
	}
	d.VenueAddress = f[fieldVenueAddress]
	d.Couple = f[fieldCouple]

	d.MainPhotographer, d.SubPhotographer = SplitPhotographers(f[fieldPhotographers])
	if v := f[fieldMain]; v != "" {
		d.MainPhotographer = v
	}
	if v := f[fieldSub]; v != "" {
		d.SubPhotographer = v
	}
	if d.MainPhotographer == "" {
		errs.add(fieldPhotographers, "main photographer required")
	}
	if d.SubPhotographer != "" && d.SubPhotographer == d.MainPhotographer {
		errs.add(fieldSub, "same as main photographer")
	}

	if v, ok := f[fieldTravelMinutes]; ok {
		n, err := strconv.Atoi(strings.TrimSuffix(v, "분"))
		switch {
		case err != nil:
			errs.add(fieldTravelMinutes, "not a number")
		case n <= 0:
			errs.add(fieldTravelMinutes, "must be positive")
		default:
			d.TravelMinutesDefault = &n
		}
	}

	if err := errs.orNil(); err != nil {
		return ScheduleDraft{}, err
	}
	return d, nil
}

// MapPhotographerRow validates one roster row. Username defaults to the name.
func MapPhotographerRow(row Row) (PhotographerDraft, error) {
	f := canonical(row, photographerAliases)
	errs := &RowErrors{}

	d := PhotographerDraft{
		Name:     f[fieldName],
		Address:  f[fieldAddress],
		Username: strings.ToLower(f[fieldUsername]),
	}
	if d.Name == "" {
		errs.add(fieldName, "required")
	}
	if d.Username == "" {
		d.Username = strings.ToLower(strings.ReplaceAll(d.Name, " ", ""))
	}
	switch v := strings.ToLower(f[fieldRole]); v {
	case "", "main", "메인":
		d.Role = schedule.RoleMain
	case "sub", "서브":
		d.Role = schedule.RoleSub
	default:
		errs.add(fieldRole, fmt.Sprintf("unknown role %q", v))
	}

	if err := errs.orNil(); err != nil {
		return PhotographerDraft{}, err
	}
	return d, nil
}

func optionalTime(f map[string]string, field string, errs *RowErrors) *schedule.TimeOfDay {
	v, ok := f[field]
	if !ok {
		return nil
	}
	t, err := schedule.ParseTimeOfDay(v)
	if err != nil {
		errs.add(field, "expected HH:MM")
		return nil
	}
	return &t
}

var separators = []string{"·", "/", ",", "&", "및", " and "}

// SplitPhotographers splits a photographer cell into main and sub. A cell
// without a separator but with two space separated names of two or more
// characters is treated as two people.
func SplitPhotographers(cell string) (main, sub string) {
	raw := cleanName(cell)
	if raw == "" {
		return "", ""
	}
	parts := []string{raw}
	for _, sep := range separators {
		if strings.Contains(raw, sep) {
			parts = strings.Split(raw, sep)
			break
		}
	}
	if len(parts) == 1 {
		if fields := strings.Fields(raw); len(fields) >= 2 &&
			len([]rune(fields[0])) >= 2 && len([]rune(fields[1])) >= 2 {
			parts = fields
		}
	}

	var names []string
	for _, p := range parts {
		if p = cleanName(p); p != "" {
			names = append(names, p)
		}
	}
	switch len(names) {
	case 0:
		return "", ""
	case 1:
		return names[0], ""
	default:
		return names[0], names[1]
	}
}

var (
	dateLayouts = []string{"2006-1-2", "2006.1.2", "2006/1/2", "06.1.2", "06/1/2", "06-1-2"}
	koreanDate  = regexp.MustCompile(`^(\d{2}|\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일$`)
)

// ParseDate accepts ISO, dotted and slashed dates with two or four digit
// years, and the Korean "26년 02월 08일" form.
func ParseDate(s string) (schedule.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return schedule.DateOf(t), nil
		}
	}
	if m := koreanDate.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if y < 100 {
			y += 2000
		}
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Month() == time.Month(mo) && t.Day() == d {
			return schedule.DateOf(t), nil
		}
	}
	return schedule.Date{}, fmt.Errorf("unrecognized date %q", s)
}

func cleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
