// Package replay persists time-partitioned snapshots, the per-day events log
// and the GO dedupe ledger under a single data directory.
package replay

import (
	"path/filepath"
	"regexp"
	"time"
	_ "time/tzdata"
)

const (
	eventsFile = "events.json"
	ledgerFile = "go-ledger.json"
	goSuffix   = "_GO.json"
)

var (
	phoenix   = loadPhoenix()
	hhmmRe    = regexp.MustCompile(`^([01]\d|2[0-3])[0-5]\d$`)
	cadenceRe = regexp.MustCompile(`^([01]\d|2[0-3])[0-5]\d\.json$`)
)

func loadPhoenix() *time.Location {
	loc, err := time.LoadLocation("America/Phoenix")
	if err != nil {
		return time.FixedZone("MST", -7*3600)
	}
	return loc
}

// Phoenix is the day-partitioning zone.
func Phoenix() *time.Location { return phoenix }

// Layout maps dates and times onto paths below Root.
type Layout struct {
	Root string
}

func (l Layout) DayDir(date string) string { return filepath.Join(l.Root, date) }

func (l Layout) CadencePath(date, hhmm string) string {
	return filepath.Join(l.Root, date, hhmm+".json")
}

func (l Layout) GoPath(date, hhmmss string) string {
	return filepath.Join(l.Root, date, hhmmss+goSuffix)
}

func (l Layout) EventsPath(date string) string { return filepath.Join(l.Root, date, eventsFile) }

func (l Layout) LedgerPath(date string) string { return filepath.Join(l.Root, date, ledgerFile) }

// DateOf returns the Phoenix calendar date of t.
func DateOf(t time.Time) string { return t.In(phoenix).Format("2006-01-02") }

// HHMM returns the Phoenix wall-clock minute of t.
func HHMM(t time.Time) string { return t.In(phoenix).Format("1504") }

// HHMMSS returns the Phoenix wall-clock second of t.
func HHMMSS(t time.Time) string { return t.In(phoenix).Format("150405") }

// ValidDate reports whether s is a YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// ValidHHMM reports whether s is a 24h HHMM time.
func ValidHHMM(s string) bool { return hhmmRe.MatchString(s) }
