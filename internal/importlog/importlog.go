package importlog

import (
	"context"
	"fmt"
	"time"

	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

type Recorder struct {
	store store.Store
	now   func() time.Time
}

func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st, now: time.Now}
}

type Entry struct {
	Filename     string
	FileType     model.FileType
	RecordsCount int
}

// Start opens a log in the processing state and returns its id.
func (r *Recorder) Start(ctx context.Context, entry Entry) (string, error) {
	rows, err := r.store.Insert(ctx, model.TableImportLogs, store.Row{
		"filename":         entry.Filename,
		"file_type":        entry.FileType,
		"records_count":    entry.RecordsCount,
		"records_imported": 0,
		"records_failed":   0,
		"status":           model.ImportProcessing,
		"errors":           []model.ImportError{},
		"imported_at":      r.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("insert import log: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("insert import log: no row returned")
	}
	return rows[0].String("id"), nil
}

type Outcome struct {
	Imported int
	Failed   int
	Errors   []string
}

// Status is completed when the run produced no errors and failed otherwise.
func (o Outcome) Status() model.ImportStatus {
	if len(o.Errors) == 0 {
		return model.ImportCompleted
	}
	return model.ImportFailed
}

// Complete moves a processing log to its terminal status.
func (r *Recorder) Complete(ctx context.Context, id string, out Outcome) (model.ImportLog, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return model.ImportLog{}, err
	}
	next := out.Status()
	if !current.Status.CanTransition(next) {
		return current, fmt.Errorf("import log %s: cannot move from %s to %s", id, current.Status, next)
	}

	errs := make([]model.ImportError, 0, len(out.Errors))
	for _, msg := range out.Errors {
		errs = append(errs, model.ImportError{Message: msg})
	}
	row, err := r.store.Update(ctx, model.TableImportLogs, id, store.Row{
		"records_imported": out.Imported,
		"records_failed":   out.Failed,
		"status":           next,
		"errors":           errs,
		"completed_at":     r.now().UTC(),
	})
	if err != nil {
		return model.ImportLog{}, fmt.Errorf("complete import log: %w", err)
	}
	return store.Decode[model.ImportLog](row)
}

func (r *Recorder) Get(ctx context.Context, id string) (model.ImportLog, error) {
	row, err := r.store.FetchByID(ctx, model.TableImportLogs, id)
	if err != nil {
		return model.ImportLog{}, err
	}
	return store.Decode[model.ImportLog](row)
}

// List returns logs newest first, optionally narrowed to one file type.
func (r *Recorder) List(ctx context.Context, fileType model.FileType, limit, offset int) ([]model.ImportLog, error) {
	q := store.Query{Order: []store.Order{store.Desc("imported_at")}, Limit: limit, Offset: offset}
	if fileType != "" {
		q = q.Where(store.Eq("file_type", fileType))
	}
	rows, err := r.store.Fetch(ctx, model.TableImportLogs, q)
	if err != nil {
		return nil, err
	}
	return store.DecodeRows[model.ImportLog](rows)
}

func (r *Recorder) Delete(ctx context.Context, id string) error {
	ok, err := r.store.Delete(ctx, model.TableImportLogs, id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}
