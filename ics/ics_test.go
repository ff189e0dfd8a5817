package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"clubsite/pkg/club"
)

func testEvent() *club.Event {
	return &club.Event{
		ID:          "e1",
		Title:       "Intro Workshop",
		Slug:        "intro-workshop",
		Date:        "2099-01-01T18:00:00Z",
		Type:        "workshop",
		Description: "Bring a laptop;\nsnacks provided, obviously",
		Location:    "Engineering Building",
		Venue:       "Room 101",
	}
}

func TestGenerateStructure(t *testing.T) {
	out, err := Generate(testEvent(), "club.example")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"VERSION:2.0\r\n",
		"UID:e1@club.example\r\n",
		"DTSTART:20990101T180000Z\r\n",
		"DTEND:20990101T200000Z\r\n", // default two hour duration
		"SUMMARY:Intro Workshop\r\n",
		"LOCATION:Room 101\\, Engineering Building\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	if !strings.Contains(out, `DESCRIPTION:Bring a laptop\;\nsnacks provided\, obviously`) {
		t.Error("description not escaped per RFC 5545")
	}
	if strings.Contains(strings.ReplaceAll(out, "\r\n", ""), "\n") {
		t.Error("output contains bare newlines, want CRLF only")
	}
}

func TestGenerateExplicitEnd(t *testing.T) {
	ev := testEvent()
	ev.EndDate = "2099-01-01T21:30:00Z"

	out, err := Generate(ev, "club.example")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(out, "DTEND:20990101T213000Z\r\n") {
		t.Error("explicit end date not used")
	}
}

func TestGenerateUnparseableDate(t *testing.T) {
	ev := testEvent()
	ev.Date = "see you there"

	if _, err := Generate(ev, "club.example"); err == nil {
		t.Error("Generate() error = nil, want failure for unparseable date")
	}
}

func TestFeedSkipsBrokenEvents(t *testing.T) {
	good := testEvent()
	broken := testEvent()
	broken.ID = "e2"
	broken.Title = "No Date Yet"
	broken.Date = "TBD"

	out := Feed([]*club.Event{good, broken}, "club.example")

	if !strings.Contains(out, "UID:e1@club.example") {
		t.Error("feed missing valid event")
	}
	if strings.Contains(out, "No Date Yet") {
		t.Error("feed includes event with unparseable date")
	}
}

// Round-trips the generated calendar through a real iCalendar parser to
// catch formatting mistakes a substring check would miss.
func TestGenerateParsesBack(t *testing.T) {
	ev := testEvent()
	out, err := Generate(ev, "club.example")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCalendar() error = %v", err)
	}

	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("parsed %d events, want 1", len(events))
	}
	ve := events[0]

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p == nil || p.Value != "e1@club.example" {
		t.Errorf("parsed UID = %v", p)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p == nil || Unescape(p.Value) != ev.Title {
		t.Errorf("parsed SUMMARY = %v", p)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p == nil || Unescape(p.Value) != ev.Description {
		t.Errorf("parsed DESCRIPTION = %v, want %q", p, ev.Description)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		t.Fatalf("GetStartAt() error = %v", err)
	}
	want := time.Date(2099, 1, 1, 18, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("parsed start = %v, want %v", start, want)
	}
}

func TestGenerateFoldsLongLines(t *testing.T) {
	ev := testEvent()
	ev.Description = strings.Repeat("Bring a laptop and snacks. ", 12) + "Café on the ground floor."

	out, err := Generate(ev, "club.example")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, line := range strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n") {
		if len(line) > 75 {
			t.Errorf("content line is %d octets, want <= 75: %q", len(line), line)
		}
	}

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCalendar() error = %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("parsed %d events, want 1", len(events))
	}
	p := events[0].GetProperty(ical.ComponentPropertyDescription)
	if p == nil || Unescape(p.Value) != ev.Description {
		t.Errorf("folded description did not unfold back to the original")
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`a\, b`, "a, b"},
		{`a\; b`, "a; b"},
		{`line1\nline2`, "line1\nline2"},
		{`back\\slash`, `back\slash`},
		{`trailing\`, `trailing\`},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Unescape(tt.in); got != tt.want {
			t.Errorf("Unescape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
