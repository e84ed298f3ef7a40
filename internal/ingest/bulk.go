package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/courier-analytics/api/internal/importlog"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

// ImportPerformance stores courier report rows under a new import batch.
func (im *Importer) ImportPerformance(ctx context.Context, filename string, records []model.CourierPerformanceInput) (model.ImportSummary, error) {
	return bulkImport(ctx, im, model.TableCourierPerformance, model.FileTypeDelivery, filename, records)
}

// ImportPickupOrders stores pickup document rows under a new import batch.
func (im *Importer) ImportPickupOrders(ctx context.Context, filename string, records []model.PickupOrderInput) (model.ImportSummary, error) {
	return bulkImport(ctx, im, model.TablePickupOrders, model.FileTypePickup, filename, records)
}

// DeleteBatch removes every row of table that was created by one import batch.
func (im *Importer) DeleteBatch(ctx context.Context, table, batchID string) (int64, error) {
	n, err := im.store.DeleteWhere(ctx, table, store.Eq("import_batch_id", batchID))
	if err != nil {
		return 0, fmt.Errorf("delete batch %s: %w", batchID, err)
	}
	if n > 0 && im.invalidator != nil {
		if err := im.invalidator.Invalidate(ctx); err != nil {
			im.logger.Warn("cache_invalidate_failed", "error", err)
		}
	}
	return n, nil
}

type validating[T any] interface {
	*T
	Validate() error
}

func bulkImport[T any, PT validating[T]](ctx context.Context, im *Importer, table string, ft model.FileType, filename string, records []T) (model.ImportSummary, error) {
	if len(records) == 0 {
		return model.ImportSummary{}, ErrNoRecords
	}
	started := im.now()
	// The batch id tags every row, so the log must exist first.
	batchID, err := im.logs.Start(ctx, importlog.Entry{Filename: filename, FileType: ft, RecordsCount: len(records)})
	if err != nil {
		return model.ImportSummary{}, err
	}

	rep := &report{total: len(records)}
	rows := make([]store.Row, 0, len(records))
	for i := range records {
		rec := PT(&records[i])
		if err := rec.Validate(); err != nil {
			rep.rowError(i+1, err)
			continue
		}
		row, err := store.Encode(rec)
		if err != nil {
			rep.rowError(i+1, err)
			continue
		}
		row["import_batch_id"] = batchID
		rows = append(rows, row)
	}
	im.persist(ctx, table, nil, wideChunkSize, rows, rep)

	outcome := rep.outcome()
	if _, err := im.logs.Complete(ctx, batchID, outcome); err != nil {
		im.logger.Warn("import_log_complete_failed", "batch_id", batchID, "error", err)
	}
	if rep.imported > 0 && im.invalidator != nil {
		if err := im.invalidator.Invalidate(ctx); err != nil {
			im.logger.Warn("cache_invalidate_failed", "error", err)
		}
	}

	errs := rep.errors
	if errs == nil {
		errs = []string{}
	}
	elapsed := time.Since(started).Milliseconds()
	im.logger.Info("bulk_import_completed",
		"batch_id", batchID,
		"table", table,
		"total", rep.total,
		"imported", rep.imported,
		"failed", outcome.Failed,
		"duration_ms", elapsed,
	)
	return model.ImportSummary{
		BatchID:      batchID,
		Filename:     filename,
		FileType:     ft,
		TotalRecords: rep.total,
		Imported:     rep.imported,
		Failed:       outcome.Failed,
		Status:       outcome.Status(),
		Errors:       errs,
		DurationMs:   elapsed,
	}, nil
}
