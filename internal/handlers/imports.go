package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/courier-analytics/api/internal/httpx"
	"github.com/courier-analytics/api/internal/ingest"
	"github.com/courier-analytics/api/internal/model"
)

type appError struct {
	Status  int
	Code    string
	Message string
}

// parseUpload reads the multipart "file" field into memory, bounded by maxBytes.
func parseUpload(r *http.Request, maxBytes int64) (string, []byte, *appError) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return "", nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_content_type",
			Message: "Content-Type must be multipart/form-data",
		}
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", nil, &appError{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    "PAYLOAD_TOO_LARGE",
				Message: fmt.Sprintf("file exceeds %d bytes", maxBytes),
			}
		}
		return "", nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "Failed to parse multipart form",
		}
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "missing_file",
			Message: "file is required",
		}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return "", nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "Failed to read uploaded file",
		}
	}
	if int64(len(data)) > maxBytes {
		return "", nil, &appError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "PAYLOAD_TOO_LARGE",
			Message: fmt.Sprintf("file exceeds %d bytes", maxBytes),
		}
	}
	return header.Filename, data, nil
}

// PostIngest imports an uploaded spreadsheet of the given kind. The mode
// field (append|replace) applies to deliveries only.
func (s *Server) PostIngest(w http.ResponseWriter, r *http.Request, kind string) {
	filename, data, appErr := parseUpload(r, s.Config.ImportMaxFileBytes)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, nil)
		return
	}
	rawMode := r.FormValue("mode")
	if rawMode == "" {
		rawMode = r.URL.Query().Get("import_mode")
	}
	mode, err := ingest.ParseMode(rawMode)
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	res, err := s.Importer.Import(r.Context(), ingest.Upload{
		Filename: filename,
		Data:     data,
		Kind:     ingest.Kind(kind),
		Mode:     mode,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) GetImports(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	fileType := model.FileType(p.raw("file_type"))
	if fileType != "" && fileType != model.FileTypeDelivery && fileType != model.FileTypePickup {
		p.fail("file_type must be %s or %s", model.FileTypeDelivery, model.FileTypePickup)
	}
	limit, offset := p.page()
	if !p.ok(s, w, r) {
		return
	}
	logs, err := s.Importer.Logs().List(r.Context(), fileType, limit, offset)
	writeResult(s, w, r, logs, err)
}

func (s *Server) GetImport(w http.ResponseWriter, r *http.Request, id string) {
	log, err := s.Importer.Logs().Get(r.Context(), id)
	writeResult(s, w, r, log, err)
}

// DeleteImport removes the records a bulk import created, then its log.
func (s *Server) DeleteImport(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if _, err := s.Importer.Logs().Get(ctx, id); err != nil {
		s.fail(w, r, err)
		return
	}
	for _, table := range []string{model.TableCourierPerformance, model.TablePickupOrders} {
		if _, err := s.Importer.DeleteBatch(ctx, table, id); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if err := s.Importer.Logs().Delete(ctx, id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(ctx)
	w.WriteHeader(http.StatusNoContent)
}

// GetImportErrorsCsv exports the recorded errors of an import as CSV. Row
// errors carry their spreadsheet row number; batch errors leave it blank.
func (s *Server) GetImportErrorsCsv(w http.ResponseWriter, r *http.Request, id string) {
	log, err := s.Importer.Logs().Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"import-%s-errors.csv\"", log.ID))
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"row_number", "message"})
	for _, e := range log.Errors {
		row, msg := splitRowError(e.Message)
		_ = writer.Write([]string{row, msg})
	}
	writer.Flush()
}

func splitRowError(message string) (string, string) {
	rest, ok := strings.CutPrefix(message, "Row ")
	if !ok {
		return "", message
	}
	num, msg, ok := strings.Cut(rest, ": ")
	if _, err := strconv.Atoi(num); !ok || err != nil {
		return "", message
	}
	return num, msg
}
