package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/xuri/excelize/v2"

	"github.com/courier-analytics/api/internal/model"
)

// Primary date layouts of the two source exports. Day and month may be unpadded.
const (
	LayoutDotted = "2.1.2006"
	LayoutDashed = "2-1-2006"
)

var numberNoise = strings.NewReplacer(
	"EUR", "", "eur", "", "€", "",
	"UAH", "", "uah", "", "грн", "", "₴", "",
	"%", "",
	" ", "", " ", "", " ", "", "\t", "",
)

// ParseFloat converts a cell to a number. Missing or unparsable input is 0.
func ParseFloat(raw any) float64 {
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return finite(f)
	case string:
		return parseNumberString(v)
	default:
		return parseNumberString(fmt.Sprint(v))
	}
}

func parseNumberString(s string) float64 {
	s = numberNoise.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	// 1.234,56 -> 1234.56
	if strings.Contains(s, ",") && strings.Contains(s, ".") && strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
		s = strings.ReplaceAll(s, ".", "")
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseDate reads a calendar date using layout first, then a permissive
// fallback. It returns nil when nothing matches.
func ParseDate(raw any, layout string) *openapi_types.Date {
	switch v := raw.(type) {
	case nil:
		return nil
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return dateOf(v)
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil
		}
		return dateOf(*v)
	case openapi_types.Date:
		return dateOf(v.Time)
	case *openapi_types.Date:
		if v == nil {
			return nil
		}
		return dateOf(v.Time)
	}

	s := strings.TrimSpace(fmt.Sprint(raw))
	if isBlank(s) {
		return nil
	}
	if t, err := time.Parse(layout, s); err == nil {
		return dateOf(t)
	}
	if head, _, found := strings.Cut(s, " "); found {
		if t, err := time.Parse(layout, head); err == nil {
			return dateOf(t)
		}
	}
	return fallbackDate(s)
}

func fallbackDate(s string) *openapi_types.Date {
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		// Spreadsheet day numbers; plain years such as "2023" are left to the general parser.
		if serial >= 10000 && serial < 2958466 {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return dateOf(t)
			}
		}
	}
	if !strings.ContainsAny(s, "-/.") && len(s) != 8 {
		return nil
	}
	t, err := now.Parse(s)
	if err != nil {
		return nil
	}
	return dateOf(t)
}

func dateOf(t time.Time) *openapi_types.Date {
	return &openapi_types.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseTime accepts exactly HH:MM; anything else is nil.
func ParseTime(raw any) *model.TimeOfDay {
	switch v := raw.(type) {
	case nil:
		return nil
	case model.TimeOfDay:
		return &v
	}
	s := strings.TrimSpace(fmt.Sprint(raw))
	if len(s) != 5 || s[2] != ':' {
		return nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return nil
	}
	return &model.TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// parseCount reads a non-negative whole number, failing on anything else.
func parseCount(field, raw string) (int, error) {
	s := numberNoise.Replace(strings.TrimSpace(raw))
	if isBlank(s) {
		return 0, fmt.Errorf("%s is required", field)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s %q", field, raw)
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative whole number", field, raw)
	}
	return int(f), nil
}

// isBlank treats the spreadsheet placeholder "nan" as an empty cell.
func isBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "nan")
}
