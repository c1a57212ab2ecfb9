package replay

import (
	"time"

	"github.com/google/uuid"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/pkg/util"
)

func (w *Writer) loadEvents(date string) (models.EventLog, error) {
	var log models.EventLog
	if _, err := readJSON(w.layout.EventsPath(date), &log); err != nil {
		return models.EventLog{Events: []models.Event{}}, err
	}
	if log.Events == nil {
		log.Events = []models.Event{}
	}
	return log, nil
}

// appendEvents adds events to the day log. Timestamps earlier than the
// current tail are clamped so the log stays non-decreasing.
func (w *Writer) appendEvents(date string, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	log, err := w.loadEvents(date)
	if err != nil {
		return err
	}
	var tail time.Time
	if n := len(log.Events); n > 0 {
		tail, _ = util.ParseTime(log.Events[n-1].TsUTC)
	}
	for _, ev := range events {
		ts, ok := util.ParseTime(ev.TsUTC)
		if !ok {
			ts = w.now()
		}
		if ts.Before(tail) {
			ts = tail
		}
		tail = ts
		ev.TsUTC = ts.UTC().Format(time.RFC3339Nano)
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.ReasonCodes == nil {
			ev.ReasonCodes = []string{}
		}
		log.Events = append(log.Events, ev)
	}
	return writeJSON(w.layout.EventsPath(date), log, true)
}

func (w *Writer) loadLedger(date string) (models.GoLedger, error) {
	var l models.GoLedger
	_, err := readJSON(w.layout.LedgerPath(date), &l)
	if l.Strategies == nil {
		l.Strategies = map[string]models.GoLedgerEntry{}
	}
	return l, err
}

func (w *Writer) saveLedger(date string, l models.GoLedger) error {
	return writeJSON(w.layout.LedgerPath(date), l, true)
}
