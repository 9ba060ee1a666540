// Package events loads the pump-event list that drives a download batch.
package events

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Event is one detected pump: a bare ticker (XYZ) listed on Exchange, pumped
// at Date Hour UTC.
type Event struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Date     string `json:"date" yaml:"date"`
	Hour     string `json:"hour" yaml:"hour"`
	Exchange string `json:"exchange" yaml:"exchange"`
	Group    string `json:"group,omitempty" yaml:"group,omitempty"`
}

// Key identifies the event inside a symbol: "2021-05-01 18:00".
func (e Event) Key() string {
	return strings.TrimSpace(e.Date) + " " + strings.TrimSpace(e.Hour)
}

// PumpTime parses Date and Hour as UTC.
func (e Event) PumpTime() (time.Time, error) {
	hour := strings.TrimSpace(e.Hour)
	if len(hour) == 4 && hour[1] == ':' {
		hour = "0" + hour
	}
	ts, err := time.ParseInLocation(dateLayout+" "+clockLayout, strings.TrimSpace(e.Date)+" "+hour, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("event %s %s: %w", e.Symbol, e.Key(), err)
	}
	return ts, nil
}

// Window returns [pump - daysBefore, pump + daysAfter) in epoch milliseconds.
func (e Event) Window(daysBefore, daysAfter int) (int64, int64, error) {
	pump, err := e.PumpTime()
	if err != nil {
		return 0, 0, err
	}
	day := 24 * time.Hour
	start := pump.Add(-time.Duration(daysBefore) * day)
	end := pump.Add(time.Duration(daysAfter) * day)
	return start.UnixMilli(), end.UnixMilli(), nil
}

// FileName is the CSV name for this event, colons replaced so the name is
// portable: "XYZ_2021-05-01 18.00.csv".
func (e Event) FileName() string {
	return fmt.Sprintf("%s_%s.csv", strings.TrimSpace(e.Symbol), strings.ReplaceAll(e.Key(), ":", "."))
}

// OutputPath joins dataDir and FileName.
func (e Event) OutputPath(dataDir string) string {
	return filepath.Join(dataDir, e.FileName())
}

// FilterExchange keeps the events listed on exchange (case-insensitive).
func FilterExchange(list []Event, exchange string) []Event {
	want := strings.ToLower(strings.TrimSpace(exchange))
	out := make([]Event, 0, len(list))
	for _, ev := range list {
		if strings.ToLower(strings.TrimSpace(ev.Exchange)) == want {
			out = append(out, ev)
		}
	}
	return out
}
