// Package ics renders events as RFC 5545 iCalendar objects, both as single
// downloadable invites and as a subscribable feed.
package ics

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"clubsite/pkg/club"
)

const (
	prodID     = "-//Club Site//Event Calendar//EN"
	timeLayout = "20060102T150405Z"

	// RFC 5545 §3.1 caps content lines at 75 octets before the CRLF.
	maxLineOctets = 75
)

// escape applies RFC 5545 TEXT escaping: backslash, semicolon, comma, and
// newlines.
func escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\r\n", "\\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// Unescape reverses RFC 5545 TEXT escaping.
func Unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// writeLine emits one content line, folding at 75 octets with a CRLF plus
// single-space continuation. Folds land on rune boundaries so multi-byte
// characters survive.
func writeLine(b *strings.Builder, line string) {
	limit := maxLineOctets
	for len(line) > limit {
		n := limit
		for n > 0 && !utf8.RuneStart(line[n]) {
			n--
		}
		b.WriteString(line[:n])
		b.WriteString("\r\n ")
		line = line[n:]
		// Continuation lines carry the leading space inside the cap.
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}

func writeEvent(b *strings.Builder, ev *club.Event, domain string, now time.Time) error {
	start, err := club.ParseEventTime(ev.Date)
	if err != nil {
		return fmt.Errorf("event %s has unparseable date %q: %w", ev.ID, ev.Date, err)
	}
	end := ev.EndTime(start)

	writeLine(b, "BEGIN:VEVENT")
	writeLine(b, fmt.Sprintf("UID:%s@%s", ev.ID, domain))
	writeLine(b, "DTSTAMP:"+now.UTC().Format(timeLayout))
	writeLine(b, "DTSTART:"+start.UTC().Format(timeLayout))
	writeLine(b, "DTEND:"+end.UTC().Format(timeLayout))
	writeLine(b, "SUMMARY:"+escape(ev.Title))
	if ev.Description != "" {
		writeLine(b, "DESCRIPTION:"+escape(ev.Description))
	}
	if loc := ev.FullLocation(); loc != "" {
		writeLine(b, "LOCATION:"+escape(loc))
	}
	if ev.RegistrationLink != "" {
		writeLine(b, "URL:"+ev.RegistrationLink)
	}
	writeLine(b, "END:VEVENT")
	return nil
}

// Generate renders a single-event VCALENDAR suitable for an email attachment
// or a download link. The domain scopes the UID so invites stay stable across
// regenerations.
func Generate(ev *club.Event, domain string) (string, error) {
	return generate([]*club.Event{ev}, domain, time.Now(), true)
}

// Feed renders a subscribable calendar of the given events, skipping any
// whose date cannot be parsed.
func Feed(events []*club.Event, domain string) string {
	out, _ := generate(events, domain, time.Now(), false)
	return out
}

func generate(events []*club.Event, domain string, now time.Time, strict bool) (string, error) {
	var b strings.Builder
	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:"+prodID)
	writeLine(&b, "CALSCALE:GREGORIAN")
	writeLine(&b, "METHOD:PUBLISH")

	for _, ev := range events {
		if err := writeEvent(&b, ev, domain, now); err != nil {
			if strict {
				return "", err
			}
			continue
		}
	}

	writeLine(&b, "END:VCALENDAR")
	return b.String(), nil
}
