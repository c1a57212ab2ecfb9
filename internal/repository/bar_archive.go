package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"TriggerDesk/internal/domain/models"
	pkgch "TriggerDesk/pkg/clickhouse"
	applogger "TriggerDesk/pkg/logger"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CHBarArchive implements repository.BarArchive backed by ClickHouse.
type CHBarArchive struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarArchive(ch *pkgch.Client, database string, l *applogger.Logger) (*CHBarArchive, error) {
	if !identRe.MatchString(database) {
		return nil, fmt.Errorf("clickhouse database %q: %w", database, models.ErrInvalidInput)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarArchive{db: ch.DB(), table: database + ".bars", l: l.With("bar_archive")}, nil
}

const barChunk = 2000

// StoreBars inserts bars in multi-row chunks. Replays of the same bucket collapse on merge.
func (s *CHBarArchive) StoreBars(ctx context.Context, symbol string, tf models.Timeframe, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	for start := 0; start < len(bars); start += barChunk {
		end := start + barChunk
		if end > len(bars) {
			end = len(bars)
		}
		q, args := insertBars(s.table, symbol, tf, bars[start:end])
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_bars error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Int("rows", end-start),
				applogger.Error(err),
			)
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

func insertBars(table, symbol string, tf models.Timeframe, bars []models.Bar) (string, []any) {
	values := make([]string, 0, len(bars))
	args := make([]any, 0, len(bars)*8)
	for _, b := range bars {
		if !b.Valid() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, symbol, string(tf), time.Unix(b.Time, 0).UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, tf, bucket, open, high, low, close, volume) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}

// LatestBars returns at most limit bars ascending by time.
func (s *CHBarArchive) LatestBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	start := time.Now()
	const qtpl = `
        SELECT bucket, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND tf = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), symbol, string(tf), limit)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", limit),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("latest bars: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Bar, 0, limit)
	for rows.Next() {
		var b models.Bar
		var bucket time.Time
		if err := rows.Scan(&bucket, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = bucket.Unix()
		tmp = append(tmp, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse latest_bars ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return tmp, nil
}
