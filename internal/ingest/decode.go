package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	// ErrDecode means the upload is not a readable workbook or delimited text.
	ErrDecode      = errors.New("unsupported or unreadable file")
	ErrUnknownKind = errors.New("unknown import kind")
	ErrTooManyRows = errors.New("file has too many rows")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sheet is a decoded table: the first non-empty row is the header.
type Sheet struct {
	Header []string
	Rows   [][]string
}

// Decode reads data as an XLSX workbook, then as UTF-8 CSV, then as
// Windows-1251 CSV.
func Decode(data []byte) (*Sheet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrDecode)
	}
	sheet, xlsxErr := decodeXLSX(data)
	if xlsxErr == nil {
		return sheet, nil
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("%w: %v", ErrDecode, xlsxErr)
	}

	text := bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(text) {
		sheet, err := decodeCSV(bytes.NewReader(text))
		if err == nil {
			return sheet, nil
		}
	}
	sheet, err := decodeCSV(transform.NewReader(bytes.NewReader(data), charmap.Windows1251.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return sheet, nil
}

func decodeXLSX(data []byte) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	// Raw values keep dates as serial numbers and numbers unformatted.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	formatTimeCells(f, sheets[0], rows)
	return newSheet(rows, false)
}

// formatTimeCells rewrites cells styled as a time of day from their raw day
// fraction to HH:MM.
func formatTimeCells(f *excelize.File, sheet string, rows [][]string) {
	timeStyles := map[int]bool{}
	for r, row := range rows {
		for c, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil || v < 0 {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			id, err := f.GetCellStyle(sheet, axis)
			if err != nil || id == 0 {
				continue
			}
			isTime, seen := timeStyles[id]
			if !seen {
				isTime = isTimeStyle(f, id)
				timeStyles[id] = isTime
			}
			if isTime {
				row[c] = clockOf(v)
			}
		}
	}
}

func isTimeStyle(f *excelize.File, id int) bool {
	style, err := f.GetStyle(id)
	if err != nil || style == nil {
		return false
	}
	switch style.NumFmt {
	case 18, 19, 20, 21, 45, 46, 47:
		return true
	}
	if style.CustomNumFmt == nil {
		return false
	}
	code := strings.ToLower(*style.CustomNumFmt)
	return strings.Contains(code, "h") && !strings.ContainsAny(code, "dy")
}

func clockOf(v float64) string {
	minutes := int(math.Round((v-math.Floor(v))*24*60)) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func decodeCSV(r io.Reader) (*Sheet, error) {
	text, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = sniffDelimiter(text)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	return newSheet(rows, true)
}

// sniffDelimiter picks the most frequent of , ; and tab on the header line.
func sniffDelimiter(text []byte) rune {
	line, _, _ := bytes.Cut(text, []byte("\n"))
	best, bestCount := ',', bytes.Count(line, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// newSheet drops leading blank rows. Later rows made only of delimiters are
// kept when keepBlank is set so they count as skipped records.
func newSheet(rows [][]string, keepBlank bool) (*Sheet, error) {
	var sheet *Sheet
	for _, row := range rows {
		if emptyRow(row) && (sheet == nil || !keepBlank || len(row) < 2) {
			continue
		}
		if sheet == nil {
			sheet = &Sheet{Header: row}
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	if sheet == nil {
		return nil, errors.New("no header row")
	}
	return sheet, nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
