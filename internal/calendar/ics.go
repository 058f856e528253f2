package calendar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/dwizi/wa-assistant/internal/textnorm"
)

// ICSWriter writes one RFC 5545 file per event into Dir.
type ICSWriter struct {
	Dir    string
	ProdID string
	now    func() time.Time
}

func NewICSWriter(dir string) (*ICSWriter, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("calendar directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create calendar dir: %w", err)
	}
	return &ICSWriter{Dir: dir, ProdID: "-//dwizi//wa-assistant//ES", now: time.Now}, nil
}

func (w *ICSWriter) CreateEvent(ctx context.Context, event Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(event.Title) == "" || event.Start.IsZero() || event.Duration <= 0 {
		return "", ErrInvalidEvent
	}
	content := w.render(event, uuid.NewString())
	path := filepath.Join(w.Dir, fileName(event))
	if _, err := os.Stat(path); err == nil {
		path = strings.TrimSuffix(path, ".ics") + "_" + uuid.NewString()[:8] + ".ics"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write ics: %w", err)
	}
	return path, nil
}

func (w *ICSWriter) render(event Event, uid string) string {
	const stamp = "20060102T150405Z"
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + w.ProdID,
		"CALSCALE:GREGORIAN",
		"BEGIN:VEVENT",
		"UID:" + uid + "@wa-assistant",
		"DTSTAMP:" + w.now().UTC().Format(stamp),
		"DTSTART:" + event.Start.UTC().Format(stamp),
		"DTEND:" + event.End().UTC().Format(stamp),
		"SUMMARY:" + escapeText(event.Title),
	}
	if description := strings.TrimSpace(event.Description); description != "" {
		lines = append(lines, "DESCRIPTION:"+escapeText(description))
	}
	if location := strings.TrimSpace(event.Location); location != "" {
		lines = append(lines, "LOCATION:"+escapeText(location))
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

func escapeText(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)
	return replacer.Replace(value)
}

// fileName is YYYYMMDD_HHMM_<title letters and digits>.ics in the event's own zone.
func fileName(event Event) string {
	var safe strings.Builder
	for _, r := range textnorm.StripMarks(event.Title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			safe.WriteRune(r)
		}
	}
	title := safe.String()
	if title == "" {
		title = "evento"
	}
	if len(title) > 60 {
		title = title[:60]
	}
	return event.Start.Format("20060102_1504") + "_" + title + ".ics"
}
