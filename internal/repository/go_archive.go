package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TriggerDesk/internal/domain/models"
	pkgch "TriggerDesk/pkg/clickhouse"
	"TriggerDesk/pkg/util"
)

// CHGoArchive implements repository.GoArchive. Replay files stay the source of truth.
type CHGoArchive struct {
	db    *sql.DB
	table string
}

func NewCHGoArchive(ch *pkgch.Client, database string) (*CHGoArchive, error) {
	if !identRe.MatchString(database) {
		return nil, fmt.Errorf("clickhouse database %q: %w", database, models.ErrInvalidInput)
	}
	return &CHGoArchive{db: ch.DB(), table: database + ".go_signals"}, nil
}

func goRow(p models.GoPayload, snapshotFile string) ([]any, error) {
	at, ok := util.ParseTime(p.AtUTC)
	if !ok {
		return nil, fmt.Errorf("atUtc %q: %w", p.AtUTC, models.ErrInvalidInput)
	}
	codes := p.ReasonCodes
	if codes == nil {
		codes = []string{}
	}
	return []any{at.UTC().Truncate(time.Second), p.Symbol, p.StrategyID, p.Direction, p.Price,
		p.TriggerType, p.TriggerLine, codes, p.ZoneID, p.Key(), snapshotFile}, nil
}

func (s *CHGoArchive) StoreGo(ctx context.Context, p models.GoPayload, snapshotFile string) error {
	args, err := goRow(p, snapshotFile)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (at, symbol, strategy_id, direction, price, trigger_type,
        trigger_line, reason_codes, zone_id, go_key, snapshot_file) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store go: %w", err)
	}
	return nil
}
