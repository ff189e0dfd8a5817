package club

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// eventTimeLayouts are the accepted forms for stored event dates, tried in
// order. Forms without a zone are interpreted as UTC.
var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseEventTime parses a stored event date string.
func ParseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// ResolveStatus maps an event's start date (and optional explicit end) plus
// the current time to its lifecycle status. An unparseable start fails
// closed to past. Pure and monotonic in now: as time advances the result
// only moves upcoming -> ongoing -> past.
func ResolveStatus(dateStr, endStr string, now time.Time) Status {
	start, err := ParseEventTime(dateStr)
	if err != nil {
		return StatusPast
	}

	end := start.Add(DefaultEventDuration)
	if endStr != "" {
		if t, err := ParseEventTime(endStr); err == nil && t.After(start) {
			end = t
		}
	}

	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.After(end):
		return StatusPast
	default:
		return StatusOngoing
	}
}

// EndTime returns the event's end, defaulting to start + DefaultEventDuration.
func (e *Event) EndTime(start time.Time) time.Time {
	if e.EndDate != "" {
		if t, err := ParseEventTime(e.EndDate); err == nil && t.After(start) {
			return t
		}
	}
	return start.Add(DefaultEventDuration)
}

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9]+`)
	slugCollapse = regexp.MustCompile(`-{2,}`)
)

// Slugify derives a URL-safe slug from an event title.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Validate checks the fields required to create an event.
func (e *Event) Validate() error {
	var missing []string
	if strings.TrimSpace(e.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(e.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(e.Type) == "" {
		missing = append(missing, "type")
	}
	if strings.TrimSpace(e.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if _, err := ParseEventTime(e.Date); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	return nil
}

// FullLocation joins venue and location for display and calendar payloads.
func (e *Event) FullLocation() string {
	switch {
	case e.Venue != "" && e.Location != "":
		return e.Venue + ", " + e.Location
	case e.Venue != "":
		return e.Venue
	default:
		return e.Location
	}
}
