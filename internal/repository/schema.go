package repository

import "fmt"

// Schema returns the idempotent DDL for the bar and GO archives in database db.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.bars (
            symbol LowCardinality(String),
            tf LowCardinality(String),
            bucket DateTime('UTC'),
            open Float64,
            high Float64,
            low Float64,
            close Float64,
            volume Float64,
            inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
        ) ENGINE = ReplacingMergeTree(inserted_at)
        ORDER BY (symbol, tf, bucket)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.go_signals (
            at DateTime('UTC'),
            symbol LowCardinality(String),
            strategy_id LowCardinality(String),
            direction LowCardinality(String),
            price Float64,
            trigger_type String,
            trigger_line Float64,
            reason_codes Array(String),
            zone_id String,
            go_key String,
            snapshot_file String
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, strategy_id, at, go_key)`, db),
	}
}
