package bot

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Identity describes the running bot: version, start time and processed message count.
type Identity struct {
	Version   string
	StartedAt time.Time

	messages atomic.Int64
}

func newIdentity(version string, startedAt time.Time) *Identity {
	return &Identity{Version: version, StartedAt: startedAt}
}

// Messages returns the number of processed messages.
func (i *Identity) Messages() int64 {
	return i.messages.Load()
}

func (i *Identity) count() int64 {
	return i.messages.Add(1)
}

// Uptime renders the time since start in German, e.g. "3 Stunden".
func (i *Identity) Uptime(now time.Time) string {
	return humanize.CustomRelTime(i.StartedAt, now, "", "", germanMagnitudes)
}

// FormatDate renders t like "Mon 2. Jan - 15:04".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "None"
	}
	return t.Format("Mon 2. Jan - 15:04")
}

var germanMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "gerade eben", DivBy: time.Second},
	{D: time.Minute, Format: "%d Sekunden", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 Minute", DivBy: 1},
	{D: time.Hour, Format: "%d Minuten", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 Stunde", DivBy: 1},
	{D: humanize.Day, Format: "%d Stunden", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 Tag", DivBy: 1},
	{D: humanize.Week, Format: "%d Tage", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "1 Woche", DivBy: 1},
	{D: humanize.Month, Format: "%d Wochen", DivBy: humanize.Week},
	{D: 2 * humanize.Month, Format: "1 Monat", DivBy: 1},
	{D: humanize.Year, Format: "%d Monate", DivBy: humanize.Month},
	{D: 2 * humanize.Year, Format: "1 Jahr", DivBy: 1},
	{D: humanize.LongTime, Format: "%d Jahre", DivBy: humanize.Year},
	{D: math.MaxInt64, Format: "eine Ewigkeit", DivBy: 1},
}
