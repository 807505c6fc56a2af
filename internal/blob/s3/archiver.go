package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// PredictionArchiveStore lists settled predictions for archival.
type PredictionArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.ConsensusPrediction, error)
}

// CouponArchiveStore lists settled coupons for archival.
type CouponArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Coupon, error)
}

// Archiver implements domain.Archiver. Settled records are written as JSONL
// to archive/<kind>/YYYY-MM.jsonl, partitioned by settlement month. A month
// file that already exists is merged by record id, so re-running an archive
// never duplicates lines. Records are not deleted from the primary store.
type Archiver struct {
	bucket      domain.ArchiveBucket
	predictions PredictionArchiveStore
	coupons     CouponArchiveStore
	audit       domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(
	bucket domain.ArchiveBucket,
	predictions PredictionArchiveStore,
	coupons CouponArchiveStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		bucket:      bucket,
		predictions: predictions,
		coupons:     coupons,
		audit:       audit,
	}
}

// ArchivePredictions archives predictions settled before the cutoff and
// returns how many were newly written.
func (a *Archiver) ArchivePredictions(ctx context.Context, before time.Time) (int64, error) {
	preds, err := a.predictions.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive predictions query: %w", err)
	}
	return archive(ctx, a, "predictions", before, preds,
		func(p domain.ConsensusPrediction) string { return strconv.FormatInt(p.ID, 10) },
		func(p domain.ConsensusPrediction) *time.Time { return p.SettledAt },
	)
}

// ArchiveCoupons archives coupons, with their picks, settled before the
// cutoff.
func (a *Archiver) ArchiveCoupons(ctx context.Context, before time.Time) (int64, error) {
	cs, err := a.coupons.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive coupons query: %w", err)
	}
	return archive(ctx, a, "coupons", before, cs,
		func(c domain.Coupon) string { return c.ID },
		func(c domain.Coupon) *time.Time { return c.SettledAt },
	)
}

func archive[T any](
	ctx context.Context,
	a *Archiver,
	kind string,
	before time.Time,
	records []T,
	id func(T) string,
	settledAt func(T) *time.Time,
) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]T)
	for _, r := range records {
		at := before
		if s := settledAt(r); s != nil {
			at = *s
		}
		m := domain.MonthPeriod(at)
		byMonth[m] = append(byMonth[m], r)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	var total int64
	var paths []string
	for _, m := range months {
		path := archivePath(kind, m)
		existing, err := loadJSONL[T](ctx, a.bucket, path)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive %s read %s: %w", kind, path, err)
		}

		seen := make(map[string]struct{}, len(existing))
		for _, r := range existing {
			seen[id(r)] = struct{}{}
		}
		merged := existing
		var added int64
		for _, r := range byMonth[m] {
			if _, ok := seen[id(r)]; ok {
				continue
			}
			seen[id(r)] = struct{}{}
			merged = append(merged, r)
			added++
		}
		if added == 0 {
			continue
		}

		buf, err := marshalJSONL(merged)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
		}
		if err := a.bucket.Store(ctx, path, buf); err != nil {
			return total, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
		}
		total += added
		paths = append(paths, path)
	}

	if total == 0 {
		return 0, nil
	}
	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"paths":  paths,
		"count":  total,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return total, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return total, nil
}

// archivePath builds the object key of a month's archive file, e.g.
// archive/coupons/2026-03.jsonl.
func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}

// loadJSONL decodes a month file; a missing file is empty.
func loadJSONL[T any](ctx context.Context, b domain.ArchiveBucket, path string) ([]T, error) {
	body, err := b.Load(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []T
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
