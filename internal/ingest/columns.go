package ingest

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed columns.yaml
var columnsYAML []byte

// columnSets maps kind -> normalized header -> field.
var columnSets = mustLoadColumns(columnsYAML)

func mustLoadColumns(data []byte) map[Kind]map[string]string {
	var raw map[Kind]map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		panic(fmt.Sprintf("ingest: parse columns.yaml: %v", err))
	}
	out := make(map[Kind]map[string]string, len(raw))
	for kind, fields := range raw {
		byHeader := map[string]string{}
		for field, labels := range fields {
			for _, label := range labels {
				byHeader[normalizeHeader(label)] = field
			}
		}
		out[kind] = byHeader
	}
	return out
}

var apostrophes = strings.NewReplacer("’", "'", "ʼ", "'", "‘", "'", "`", "'", "\uFEFF", "")

func normalizeHeader(h string) string {
	h = apostrophes.Replace(h)
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// Record is one data row addressed by field name.
type Record struct {
	cells map[string]string
}

// Get returns the trimmed cell for field, or "" when the column is absent.
func (r Record) Get(field string) string {
	return strings.TrimSpace(r.cells[field])
}

// Optional returns nil for absent, empty and "nan" cells.
func (r Record) Optional(field string) *string {
	v := r.Get(field)
	if isBlank(v) {
		return nil
	}
	return &v
}

// Bind resolves the sheet header against the labels known for kind. A sheet
// sharing no column with kind cannot be imported as that kind.
func (s *Sheet) Bind(kind Kind) ([]Record, error) {
	labels, ok := columnSets[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	index := map[string]int{}
	for i, h := range s.Header {
		if field, ok := labels[normalizeHeader(h)]; ok {
			if _, seen := index[field]; !seen {
				index[field] = i
			}
		}
	}
	if len(index) == 0 {
		return nil, fmt.Errorf("%w: no recognised %s columns in header", ErrDecode, kind)
	}

	records := make([]Record, 0, len(s.Rows))
	for _, row := range s.Rows {
		cells := make(map[string]string, len(index))
		for field, i := range index {
			if i < len(row) {
				cells[field] = row[i]
			}
		}
		records = append(records, Record{cells: cells})
	}
	return records, nil
}
