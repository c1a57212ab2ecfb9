package repository

import (
	"errors"
	"strings"
	"testing"
	"time"

	"TriggerDesk/internal/domain/models"
)

func TestInsertBarsSkipsInvalidRows(t *testing.T) {
	bars := []models.Bar{
		{Time: 1717421400, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: 1717421460, Open: 1, High: 0.5, Low: 2, Close: 1, Volume: 1},
		{Time: 1717421520, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 20},
	}
	q, args := insertBars("triggerdesk.bars", "SPY", models.TF1m, bars)
	if strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?)") != 2 || len(args) != 16 {
		t.Fatalf("unexpected insert: %s (%d args)", q, len(args))
	}
	if ts, ok := args[2].(time.Time); !ok || ts.Unix() != 1717421400 {
		t.Fatalf("bucket arg = %v", args[2])
	}
}

func TestGoRowRequiresParsableTime(t *testing.T) {
	p := models.GoPayload{Symbol: "SPY", StrategyID: "intraday_5b", Direction: "LONG", AtUTC: "2025-06-02T17:01:05Z"}
	args, err := goRow(p, "2025-06-02/100105_GO.json")
	if err != nil {
		t.Fatal(err)
	}
	if args[9] != p.Key() || args[7] == nil {
		t.Fatalf("unexpected row %v", args)
	}
	p.AtUTC = "yesterday"
	if _, err := goRow(p, ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSchemaUsesDatabase(t *testing.T) {
	for _, stmt := range Schema("desk") {
		if !strings.Contains(stmt, "desk") {
			t.Fatalf("statement missing database: %s", stmt)
		}
	}
}
