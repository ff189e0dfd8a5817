package email

import (
	"fmt"
	"strings"
)

// formatEventBody renders the HTML announcement for a new event. Styling is
// kept inline-friendly so Gmail and Outlook render it the same way.
func (s *Sender) formatEventBody(p map[string]string) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".header { border-bottom: 2px solid #6c5ce7; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".header img { max-height: 48px; }\n")
	b.WriteString(".detail { margin: 4px 0; }\n")
	b.WriteString(".label { color: #6c5ce7; font-weight: 600; }\n")
	b.WriteString(".description { background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 15px 0; }\n")
	b.WriteString(".cta { display: inline-block; margin: 10px 10px 0 0; padding: 10px 18px; background: #6c5ce7; color: #fff; border-radius: 6px; text-decoration: none; }\n")
	b.WriteString(".footer { margin-top: 30px; padding-top: 15px; border-top: 1px solid #ddd; font-size: 0.9em; color: #7f8c8d; }\n")
	b.WriteString(".footer a { color: #7f8c8d; text-decoration: underline; margin-right: 8px; }\n")
	b.WriteString("a { color: #6c5ce7; text-decoration: none; }\n")
	b.WriteString("a:hover { text-decoration: underline; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n")
	if p["logo_url"] != "" {
		b.WriteString(fmt.Sprintf("<img src=\"%s\" alt=\"%s\">\n", escapeHTML(p["logo_url"]), escapeHTML(p["club_name"])))
	}
	b.WriteString(fmt.Sprintf("<h2>New Event: %s</h2>\n", escapeHTML(p["event_title"])))
	b.WriteString("</div>\n")

	b.WriteString(fmt.Sprintf("<p>Hi %s,</p>\n", escapeHTML(p["to_name"])))
	b.WriteString(fmt.Sprintf("<p>%s just announced a new %s:</p>\n", escapeHTML(p["club_name"]), escapeHTML(p["event_type"])))

	b.WriteString(fmt.Sprintf("<p class=\"detail\"><span class=\"label\">When:</span> %s at %s</p>\n",
		escapeHTML(p["event_date"]), escapeHTML(p["event_time"])))
	if p["event_location"] != "" {
		b.WriteString(fmt.Sprintf("<p class=\"detail\"><span class=\"label\">Where:</span> %s</p>\n", escapeHTML(p["event_location"])))
	}

	b.WriteString("<div class=\"description\">\n")
	b.WriteString(escapeHTML(p["event_description"]))
	b.WriteString("\n</div>\n")

	b.WriteString(fmt.Sprintf("<a href=\"%s\" class=\"cta\">Event details</a>\n", escapeHTML(p["event_url"])))
	b.WriteString(fmt.Sprintf("<a href=\"%s\" class=\"cta\">Add to calendar</a>\n", escapeHTML(p["ics_url"])))
	if p["registration_url"] != "" {
		b.WriteString(fmt.Sprintf("<a href=\"%s\" class=\"cta\">Register</a>\n", escapeHTML(p["registration_url"])))
	}

	s.writeFooter(&b, p)

	b.WriteString("</body>\n</html>")
	return b.String()
}

// formatSubscriptionBody renders welcome / reactivated / already-subscribed
// confirmations, which share one simple layout.
func (s *Sender) formatSubscriptionBody(p map[string]string) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".header { border-bottom: 2px solid #6c5ce7; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".content { background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 15px 0; }\n")
	b.WriteString(".footer { margin-top: 30px; padding-top: 15px; border-top: 1px solid #ddd; font-size: 0.9em; color: #7f8c8d; }\n")
	b.WriteString(".footer a { color: #7f8c8d; text-decoration: underline; margin-right: 8px; }\n")
	b.WriteString("a { color: #6c5ce7; text-decoration: none; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>\n", escapeHTML(p["club_name"])))
	b.WriteString("</div>\n")

	b.WriteString("<div class=\"content\">\n")
	b.WriteString(fmt.Sprintf("<p>Hi %s,</p>\n", escapeHTML(p["to_name"])))
	b.WriteString(fmt.Sprintf("<p>%s</p>\n", escapeHTML(p["message"])))
	b.WriteString("</div>\n")

	s.writeFooter(&b, p)

	b.WriteString("</body>\n</html>")
	return b.String()
}

func (s *Sender) writeFooter(b *strings.Builder, p map[string]string) {
	b.WriteString("<div class=\"footer\">\n")
	if p["instagram_url"] != "" {
		b.WriteString(fmt.Sprintf("<a href=\"%s\">Instagram</a>\n", escapeHTML(p["instagram_url"])))
	}
	if p["discord_url"] != "" {
		b.WriteString(fmt.Sprintf("<a href=\"%s\">Discord</a>\n", escapeHTML(p["discord_url"])))
	}
	b.WriteString(fmt.Sprintf("<a href=\"%s\">Unsubscribe</a>\n", escapeHTML(p["unsubscribe_url"])))
	b.WriteString(fmt.Sprintf("<p>&copy; %s %s</p>\n", escapeHTML(p["year"]), escapeHTML(p["club_name"])))
	b.WriteString("</div>\n")
}

// escapeHTML escapes HTML special characters for security.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
