package models

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrZoneMismatchStale   = errors.New("ZONE_MISMATCH_STALE")
	ErrSnapshotExists      = errors.New("snapshot already exists")
	ErrNotFound            = errors.New("not found")
)
