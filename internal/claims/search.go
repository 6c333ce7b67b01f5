package claims

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// Mode is how a search query was interpreted.
type Mode string

const (
	ModeAll   Mode = "all"
	ModeDay   Mode = "day"
	ModeMonth Mode = "month"
	ModeText  Mode = "text"
)

// Query is a parsed claim search. From is inclusive and To exclusive in
// month mode.
type Query struct {
	Mode Mode
	Day  domain.Date
	From domain.Date
	To   domain.Date
	Text string
}

var (
	daySeparators = regexp.MustCompile(`[.\s/]+`)
	dayDMY        = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	dayYMD        = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	monthMY       = regexp.MustCompile(`^(\d{1,2})[./\- ](\d{4})$`)
	monthYM       = regexp.MustCompile(`^(\d{4})[./\- ](\d{1,2})$`)
)

// ParseQuery tries an exact day, then a month, then falls back to a
// case-insensitive description substring. Blank input selects everything.
func ParseQuery(q string) Query {
	s := strings.TrimSpace(q)
	if s == "" {
		return Query{Mode: ModeAll}
	}
	if day, ok := parseDay(s); ok {
		return Query{Mode: ModeDay, Day: day}
	}
	if from, ok := parseMonth(s); ok {
		return Query{Mode: ModeMonth, From: from, To: domain.DateOf(from.AddDate(0, 1, 0))}
	}
	return Query{Mode: ModeText, Text: s}
}

// Filter converts the query into a store filter.
func (q Query) Filter() postgres.ClaimFilter {
	switch q.Mode {
	case ModeDay:
		day := q.Day
		return postgres.ClaimFilter{Day: &day}
	case ModeMonth:
		from, to := q.From, q.To
		return postgres.ClaimFilter{From: &from, To: &to}
	case ModeText:
		return postgres.ClaimFilter{Text: q.Text}
	}
	return postgres.ClaimFilter{}
}

func parseDay(s string) (domain.Date, bool) {
	norm := daySeparators.ReplaceAllString(s, "-")
	if m := dayDMY.FindStringSubmatch(norm); m != nil {
		return civilDate(m[3], m[2], m[1])
	}
	if m := dayYMD.FindStringSubmatch(norm); m != nil {
		return civilDate(m[1], m[2], m[3])
	}
	return domain.Date{}, false
}

func parseMonth(s string) (domain.Date, bool) {
	if m := monthMY.FindStringSubmatch(s); m != nil {
		return civilDate(m[2], m[1], "1")
	}
	if m := monthYM.FindStringSubmatch(s); m != nil {
		return civilDate(m[1], m[2], "1")
	}
	return domain.Date{}, false
}

// civilDate builds a date and rejects values time.Date would normalize,
// such as 31 February.
func civilDate(year, month, day string) (domain.Date, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return domain.Date{}, false
	}
	mo, err := strconv.Atoi(month)
	if err != nil || mo < 1 || mo > 12 {
		return domain.Date{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 {
		return domain.Date{}, false
	}
	out := domain.NewDate(y, time.Month(mo), d)
	if out.Day() != d || int(out.Month()) != mo {
		return domain.Date{}, false
	}
	return out, true
}
