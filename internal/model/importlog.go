package model

import "time"

type FileType string

const (
	FileTypeDelivery FileType = "delivery"
	FileTypePickup   FileType = "pickup"
)

type ImportStatus string

const (
	ImportPending    ImportStatus = "pending"
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

// CanTransition reports whether a log may move from s to next. Completed and
// failed are terminal.
func (s ImportStatus) CanTransition(next ImportStatus) bool {
	switch s {
	case ImportPending:
		return next == ImportProcessing || next == ImportCompleted || next == ImportFailed
	case ImportProcessing:
		return next == ImportCompleted || next == ImportFailed
	}
	return false
}

type ImportError struct {
	Message string `json:"message"`
}

type ImportLog struct {
	ID              string        `json:"id"`
	Filename        string        `json:"filename"`
	FileType        FileType      `json:"file_type"`
	RecordsCount    int           `json:"records_count"`
	RecordsImported int           `json:"records_imported"`
	RecordsFailed   int           `json:"records_failed"`
	Status          ImportStatus  `json:"status"`
	Errors          []ImportError `json:"errors"`
	ImportedAt      *time.Time    `json:"imported_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// ImportResult reports a spreadsheet or delivery-row import.
type ImportResult struct {
	Success         bool     `json:"success"`
	BatchID         string   `json:"batch_id,omitempty"`
	TotalRecords    int      `json:"total_records"`
	ImportedRecords int      `json:"imported_records"`
	SkippedRecords  int      `json:"skipped_records"`
	FailedRecords   int      `json:"failed_records"`
	Errors          []string `json:"errors"`
}

// ImportSummary reports a bulk import of JSON records into a batch.
type ImportSummary struct {
	BatchID      string       `json:"batch_id"`
	Filename     string       `json:"filename"`
	FileType     FileType     `json:"file_type"`
	TotalRecords int          `json:"total_records"`
	Imported     int          `json:"imported"`
	Failed       int          `json:"failed"`
	Status       ImportStatus `json:"status"`
	Errors       []string     `json:"errors"`
	DurationMs   int64        `json:"duration_ms"`
}
