package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/courier-analytics/api/internal/importlog"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/resolve"
	"github.com/courier-analytics/api/internal/store"
)

// Kind selects the row mapper and target table of a spreadsheet upload.
type Kind string

const (
	KindShipments  Kind = "shipments"
	KindEvents     Kind = "events"
	KindDeliveries Kind = "deliveries"
)

// Mode controls whether a delivery import keeps existing rows.
type Mode string

const (
	ModeAppend  Mode = "append"
	ModeReplace Mode = "replace"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeReplace:
		return ModeReplace, nil
	}
	return "", fmt.Errorf("invalid import mode %q: must be append or replace", s)
}

const (
	wideChunkSize     = 500
	deliveryChunkSize = 1000
	maxReportedErrors = 10
)

var (
	ErrNoRecords  = errors.New("no records to import")
	errUnresolved = errors.New("failed to map courier or zone")
)

// Archiver keeps a copy of an uploaded file.
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) error
}

// Invalidator drops cached analytics after data changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Importer struct {
	store       store.Store
	resolver    *resolve.Resolver
	logs        *importlog.Recorder
	archiver    Archiver
	invalidator Invalidator
	logger      *slog.Logger
	maxRows     int
	now         func() time.Time
}

type Option func(*Importer)

func WithArchiver(a Archiver) Option { return func(im *Importer) { im.archiver = a } }

func WithInvalidator(inv Invalidator) Option { return func(im *Importer) { im.invalidator = inv } }

// WithMaxRows rejects spreadsheets with more data rows than n. Zero disables the limit.
func WithMaxRows(n int) Option { return func(im *Importer) { im.maxRows = n } }

func NewImporter(st store.Store, logger *slog.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	im := &Importer{
		store:    st,
		resolver: resolve.New(st, logger),
		logs:     importlog.NewRecorder(st),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Logs exposes the import log recorder.
func (im *Importer) Logs() *importlog.Recorder { return im.logs }

// Upload is one spreadsheet to import.
type Upload struct {
	Filename string
	Data     []byte
	Kind     Kind
	Mode     Mode
}

// Import decodes an upload and persists its rows. Decode failures and
// unknown kinds are returned as errors; row and chunk failures are reported
// in the result.
func (im *Importer) Import(ctx context.Context, up Upload) (model.ImportResult, error) {
	sheet, err := Decode(up.Data)
	if err != nil {
		return model.ImportResult{}, err
	}
	if im.maxRows > 0 && len(sheet.Rows) > im.maxRows {
		return model.ImportResult{}, fmt.Errorf("%w: %d rows, limit is %d", ErrTooManyRows, len(sheet.Rows), im.maxRows)
	}
	switch up.Kind {
	case KindShipments:
		return runSheet(ctx, im, up, sheet, shipmentSchema())
	case KindEvents:
		return runSheet(ctx, im, up, sheet, eventSchema())
	case KindDeliveries:
		return runSheet(ctx, im, up, sheet, im.deliverySchema(up.Mode))
	}
	return model.ImportResult{}, fmt.Errorf("%w: %q", ErrUnknownKind, up.Kind)
}

// ImportDeliveries persists delivery rows given by name. Rows are numbered
// from 1 in error messages.
func (im *Importer) ImportDeliveries(ctx context.Context, filename string, records []model.DeliveryImport, mode Mode) (model.ImportResult, error) {
	if len(records) == 0 {
		return model.ImportResult{}, ErrNoRecords
	}
	if filename == "" {
		filename = fmt.Sprintf("api_import_%d_records", len(records))
	}
	sch := im.deliverySchema(mode)
	started := im.now()
	batchID := im.startLog(ctx, filename, sch.fileType, len(records))

	rep := &report{total: len(records)}
	valid := make([]numbered[model.DeliveryImport], 0, len(records))
	for i := range records {
		rec := records[i]
		if err := rec.Validate(); err != nil {
			rep.rowError(i+1, err)
			continue
		}
		valid = append(valid, numbered[model.DeliveryImport]{row: i + 1, rec: rec})
	}
	if err := persistRecords(ctx, im, sch, valid, rep); err != nil {
		im.finish(ctx, batchID, Upload{Filename: filename}, rep, started, err)
		return model.ImportResult{}, err
	}
	return im.finish(ctx, batchID, Upload{Filename: filename}, rep, started, nil), nil
}

// ClearDeliveries removes every delivery, preferring the server-side routine.
func (im *Importer) ClearDeliveries(ctx context.Context) error {
	_, err := im.store.Call(ctx, "delete_all_deliveries", nil)
	if err == nil {
		return nil
	}
	im.logger.Warn("delete_all_deliveries_failed", "error", err)
	if _, err := im.store.DeleteWhere(ctx, model.TableDeliveries, store.Neq("id", "00000000-0000-0000-0000-000000000000")); err != nil {
		return fmt.Errorf("clear deliveries: %w", err)
	}
	return nil
}

type numbered[T any] struct {
	row int
	rec T
}

type schema[T any] struct {
	kind      Kind
	fileType  model.FileType
	table     string
	conflict  []string
	chunkSize int
	mapRow    func(Record) (T, error)
	// prepare converts mapped records to rows. Per-record failures go to rep;
	// a returned error aborts the import.
	prepare func(ctx context.Context, recs []numbered[T], rep *report) ([]store.Row, error)
}

func shipmentSchema() schema[model.Shipment] {
	return schema[model.Shipment]{
		kind:      KindShipments,
		fileType:  model.FileTypePickup,
		table:     model.TableShipments,
		conflict:  []string{"shipment_number"},
		chunkSize: wideChunkSize,
		mapRow:    mapShipment,
		prepare:   encodeAll[model.Shipment],
	}
}

func eventSchema() schema[model.DeliveryEvent] {
	return schema[model.DeliveryEvent]{
		kind:      KindEvents,
		fileType:  model.FileTypeDelivery,
		table:     model.TableDeliveryEvents,
		chunkSize: wideChunkSize,
		mapRow:    mapEvent,
		prepare:   encodeAll[model.DeliveryEvent],
	}
}

func (im *Importer) deliverySchema(mode Mode) schema[model.DeliveryImport] {
	return schema[model.DeliveryImport]{
		kind:      KindDeliveries,
		fileType:  model.FileTypeDelivery,
		table:     model.TableDeliveries,
		conflict:  []string{"delivery_date", "courier_id", "zone_id"},
		chunkSize: deliveryChunkSize,
		mapRow:    mapDelivery,
		prepare: func(ctx context.Context, recs []numbered[model.DeliveryImport], rep *report) ([]store.Row, error) {
			return im.resolveDeliveries(ctx, mode, recs, rep)
		},
	}
}

func encodeAll[T any](_ context.Context, recs []numbered[T], rep *report) ([]store.Row, error) {
	rows := make([]store.Row, 0, len(recs))
	for _, n := range recs {
		row, err := store.Encode(n.rec)
		if err != nil {
			rep.rowError(n.row, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func runSheet[T any](ctx context.Context, im *Importer, up Upload, sheet *Sheet, sch schema[T]) (model.ImportResult, error) {
	records, err := sheet.Bind(sch.kind)
	if err != nil {
		return model.ImportResult{}, err
	}
	started := im.now()
	batchID := im.startLog(ctx, up.Filename, sch.fileType, len(records))

	rep := &report{total: len(records)}
	mapped := make([]numbered[T], 0, len(records))
	for i, rec := range records {
		v, err := sch.mapRow(rec)
		switch {
		case errors.Is(err, errSkipRow):
			rep.skipped++
		case err != nil:
			// Row 1 is the header.
			rep.rowError(i+2, err)
		default:
			mapped = append(mapped, numbered[T]{row: i + 2, rec: v})
		}
	}

	if err := persistRecords(ctx, im, sch, mapped, rep); err != nil {
		im.finish(ctx, batchID, up, rep, started, err)
		return model.ImportResult{}, err
	}
	return im.finish(ctx, batchID, up, rep, started, nil), nil
}

func persistRecords[T any](ctx context.Context, im *Importer, sch schema[T], recs []numbered[T], rep *report) error {
	rows, err := sch.prepare(ctx, recs, rep)
	if err != nil {
		return err
	}
	im.persist(ctx, sch.table, sch.conflict, sch.chunkSize, rows, rep)
	return nil
}

// persist writes rows in sequential chunks. A failed chunk is reported and
// the remaining chunks are still attempted.
func (im *Importer) persist(ctx context.Context, table string, conflict []string, size int, rows []store.Row, rep *report) {
	for start := 0; start < len(rows); start += size {
		chunk := rows[start:min(start+size, len(rows))]
		var err error
		if len(conflict) > 0 {
			_, err = im.store.Upsert(ctx, table, conflict, collapse(chunk, conflict)...)
		} else {
			_, err = im.store.Insert(ctx, table, chunk...)
		}
		if err != nil {
			im.logger.Warn("import_chunk_failed", "table", table, "offset", start, "size", len(chunk), "error", err)
			rep.chunkError(len(chunk), err)
			continue
		}
		rep.imported += len(chunk)
	}
}

// collapse keeps the last row for each conflict key, in order.
func collapse(rows []store.Row, conflict []string) []store.Row {
	keys := make([]string, len(rows))
	last := make(map[string]int, len(rows))
	for i, row := range rows {
		parts := make([]string, len(conflict))
		for j, col := range conflict {
			parts[j] = fmt.Sprint(row[col])
		}
		keys[i] = strings.Join(parts, "\x1f")
		last[keys[i]] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([]store.Row, 0, len(last))
	for i, row := range rows {
		if last[keys[i]] == i {
			out = append(out, row)
		}
	}
	return out
}

func (im *Importer) resolveDeliveries(ctx context.Context, mode Mode, recs []numbered[model.DeliveryImport], rep *report) ([]store.Row, error) {
	couriers := make([]resolve.Candidate, 0, len(recs))
	zones := make([]resolve.Candidate, 0, len(recs))
	for _, n := range recs {
		couriers = append(couriers, resolve.Candidate{Name: n.rec.CourierName, VehicleNumber: n.rec.VehicleNumber})
		zones = append(zones, resolve.Candidate{Name: n.rec.ZoneName})
	}
	courierIDs, err := im.resolver.Resolve(ctx, resolve.Couriers, couriers)
	if err != nil {
		return nil, err
	}
	zoneIDs, err := im.resolver.Resolve(ctx, resolve.Zones, zones)
	if err != nil {
		return nil, err
	}

	if mode == ModeReplace {
		if err := im.ClearDeliveries(ctx); err != nil {
			return nil, err
		}
	}

	rows := make([]store.Row, 0, len(recs))
	for _, n := range recs {
		courierID, okCourier := courierIDs.Lookup(n.rec.CourierName)
		zoneID, okZone := zoneIDs.Lookup(n.rec.ZoneName)
		if !okCourier || !okZone {
			rep.rowError(n.row, errUnresolved)
			continue
		}
		rows = append(rows, store.Row{
			"delivery_date":   n.rec.DeliveryDate,
			"courier_id":      courierID,
			"zone_id":         zoneID,
			"loaded_count":    n.rec.LoadedCount,
			"delivered_count": n.rec.DeliveredCount,
		})
	}
	return rows, nil
}

// startLog records the start of an import. Logging failures never fail the import.
func (im *Importer) startLog(ctx context.Context, filename string, ft model.FileType, count int) string {
	id, err := im.logs.Start(ctx, importlog.Entry{Filename: filename, FileType: ft, RecordsCount: count})
	if err != nil {
		im.logger.Warn("import_log_start_failed", "filename", filename, "error", err)
		return ""
	}
	return id
}

func (im *Importer) finish(ctx context.Context, batchID string, up Upload, rep *report, started time.Time, fatal error) model.ImportResult {
	if fatal != nil {
		rep.addError(fatal.Error())
	}
	if batchID != "" {
		if _, err := im.logs.Complete(ctx, batchID, rep.outcome()); err != nil {
			im.logger.Warn("import_log_complete_failed", "batch_id", batchID, "error", err)
		}
	}
	if im.archiver != nil && batchID != "" && len(up.Data) > 0 {
		key := path.Join("imports", batchID, path.Base(strings.ReplaceAll(up.Filename, "\\", "/")))
		if err := im.archiver.Archive(ctx, key, up.Data); err != nil {
			im.logger.Warn("import_archive_failed", "key", key, "error", err)
		}
	}
	if im.invalidator != nil && rep.imported > 0 {
		if err := im.invalidator.Invalidate(ctx); err != nil {
			im.logger.Warn("cache_invalidate_failed", "error", err)
		}
	}

	im.logger.Info("import_completed",
		"batch_id", batchID,
		"filename", up.Filename,
		"total", rep.total,
		"imported", rep.imported,
		"skipped", rep.skipped,
		"failed", rep.failed,
		"errors", rep.errorCount,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return rep.result(batchID)
}

type report struct {
	total      int
	imported   int
	skipped    int
	failed     int
	rowErrors  int
	errorCount int
	errors     []string
}

func (r *report) addError(msg string) {
	r.errorCount++
	if len(r.errors) < maxReportedErrors {
		r.errors = append(r.errors, msg)
	}
}

// rowError records a rejected row. Rejected rows count as skipped.
func (r *report) rowError(row int, err error) {
	r.skipped++
	r.rowErrors++
	r.addError(fmt.Sprintf("Row %d: %s", row, err))
}

func (r *report) chunkError(size int, err error) {
	r.failed += size
	r.addError("Batch insert error: " + err.Error())
}

func (r *report) outcome() importlog.Outcome {
	return importlog.Outcome{Imported: r.imported, Failed: r.failed + r.rowErrors, Errors: r.errors}
}

func (r *report) result(batchID string) model.ImportResult {
	errs := r.errors
	if errs == nil {
		errs = []string{}
	}
	return model.ImportResult{
		Success:         r.errorCount == 0,
		BatchID:         batchID,
		TotalRecords:    r.total,
		ImportedRecords: r.imported,
		SkippedRecords:  r.skipped,
		FailedRecords:   r.failed,
		Errors:          errs,
	}
}
