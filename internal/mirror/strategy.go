package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownStrategy is returned by NewStrategy for an unrecognized name.
var ErrUnknownStrategy = errors.New("unknown sync strategy")

// Decision is a strategy's verdict on one table.
type Decision struct {
	Ahead       bool   `json:"ahead"`
	Reason      string `json:"reason"`
	SourceCount int64  `json:"source_count"`
	DestCount   int64  `json:"dest_count"`
}

// Strategy decides whether the source side of a table is ahead of the destination.
type Strategy interface {
	Name() string
	Ahead(ctx context.Context, source, dest Store, table string) (Decision, error)
}

// NewStrategy resolves a strategy by name. timestampColumn only applies to "timestamp".
func NewStrategy(name, timestampColumn string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "row-count", "rowcount", "count":
		return RowCountStrategy{}, nil
	case "timestamp", "updated-at":
		if timestampColumn == "" {
			timestampColumn = "updated_at"
		}
		return TimestampStrategy{Column: timestampColumn}, nil
	case "checksum":
		return ChecksumStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

func counts(ctx context.Context, source, dest Store, table string) (Decision, error) {
	src, err := source.Count(ctx, table)
	if err != nil {
		return Decision{}, err
	}
	dst, err := dest.Count(ctx, table)
	if err != nil {
		return Decision{}, err
	}
	return Decision{SourceCount: src, DestCount: dst}, nil
}

// RowCountStrategy treats the side with strictly more rows as ahead.
// Equal counts hide any row-level divergence.
type RowCountStrategy struct{}

func (RowCountStrategy) Name() string { return "row-count" }

func (RowCountStrategy) Ahead(ctx context.Context, source, dest Store, table string) (Decision, error) {
	d, err := counts(ctx, source, dest, table)
	if err != nil {
		return d, err
	}
	if d.SourceCount > d.DestCount {
		d.Ahead = true
		d.Reason = fmt.Sprintf("%s has %d rows, %s has %d", source.Name(), d.SourceCount, dest.Name(), d.DestCount)
		return d, nil
	}
	d.Reason = fmt.Sprintf("%s has %d rows, not more than %s's %d", source.Name(), d.SourceCount, dest.Name(), d.DestCount)
	return d, nil
}

// TimestampStrategy compares the newest value of an updated-at column.
// Tables without the column fall back to row counts.
type TimestampStrategy struct {
	Column string
}

func (s TimestampStrategy) Name() string { return "timestamp" }

func (s TimestampStrategy) Ahead(ctx context.Context, source, dest Store, table string) (Decision, error) {
	srcTS, err := source.MaxTimestamp(ctx, table, s.Column)
	if errors.Is(err, ErrColumnMissing) {
		return s.fallback(ctx, source, dest, table)
	}
	if err != nil {
		return Decision{}, err
	}
	dstTS, err := dest.MaxTimestamp(ctx, table, s.Column)
	if errors.Is(err, ErrColumnMissing) {
		return s.fallback(ctx, source, dest, table)
	}
	if err != nil {
		return Decision{}, err
	}

	d, err := counts(ctx, source, dest, table)
	if err != nil {
		return d, err
	}
	switch {
	case srcTS == nil:
		d.Reason = fmt.Sprintf("%s has no %s values", source.Name(), s.Column)
	case dstTS == nil:
		d.Ahead = true
		d.Reason = fmt.Sprintf("%s has no %s values", dest.Name(), s.Column)
	case srcTS.After(*dstTS):
		d.Ahead = true
		d.Reason = fmt.Sprintf("%s newest %s %s is after %s", source.Name(), s.Column, srcTS.UTC().Format(time.RFC3339), dstTS.UTC().Format(time.RFC3339))
	default:
		d.Reason = fmt.Sprintf("%s newest %s is not after %s's", source.Name(), s.Column, dest.Name())
	}
	return d, nil
}

func (s TimestampStrategy) fallback(ctx context.Context, source, dest Store, table string) (Decision, error) {
	d, err := RowCountStrategy{}.Ahead(ctx, source, dest, table)
	if err != nil {
		return d, err
	}
	d.Reason = fmt.Sprintf("no %s column, by row count: %s", s.Column, d.Reason)
	return d, nil
}

// ChecksumStrategy syncs when table content differs and the source has at least as many rows.
type ChecksumStrategy struct{}

func (ChecksumStrategy) Name() string { return "checksum" }

func (ChecksumStrategy) Ahead(ctx context.Context, source, dest Store, table string) (Decision, error) {
	d, err := counts(ctx, source, dest, table)
	if err != nil {
		return d, err
	}
	if d.SourceCount < d.DestCount {
		d.Reason = fmt.Sprintf("%s has fewer rows (%d < %d)", source.Name(), d.SourceCount, d.DestCount)
		return d, nil
	}

	srcSum, err := source.Checksum(ctx, table)
	if err != nil {
		return d, err
	}
	dstSum, err := dest.Checksum(ctx, table)
	if err != nil {
		return d, err
	}
	if srcSum == dstSum {
		d.Reason = "checksums match"
		return d, nil
	}
	d.Ahead = true
	d.Reason = fmt.Sprintf("checksums differ (%s vs %s)", shortSum(srcSum), shortSum(dstSum))
	return d, nil
}

func shortSum(sum string) string {
	if len(sum) > 8 {
		return sum[:8]
	}
	return sum
}
