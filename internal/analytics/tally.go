package analytics

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/courier-analytics/api/internal/model"
)

// tally accumulates delivery totals for one grouping key.
type tally struct {
	key       string
	rows      int64
	loaded    int64
	delivered int64
	first     string
	last      string
}

func (t *tally) rate() float64 {
	return model.SuccessRate(t.delivered, t.loaded)
}

// tallies groups rows by key, remembering first-seen order.
type tallies struct {
	order []*tally
	byKey map[string]*tally
}

func newTallies() *tallies {
	return &tallies{byKey: map[string]*tally{}}
}

func (ts *tallies) add(key string, loaded, delivered int64, date string) {
	t, ok := ts.byKey[key]
	if !ok {
		t = &tally{key: key, first: date, last: date}
		ts.byKey[key] = t
		ts.order = append(ts.order, t)
	}
	t.rows++
	t.loaded += loaded
	t.delivered += delivered
	if date != "" && (t.first == "" || date < t.first) {
		t.first = date
	}
	if date > t.last {
		t.last = date
	}
}

func intOf(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int64(math.Round(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		return intOf(floatOf(x))
	case string:
		return intOf(floatOf(x))
	}
	return 0
}

func floatOf(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case json.Number:
		f, _ := x.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// dateKey returns the YYYY-MM-DD prefix of a stored date or timestamp.
func dateKey(v any) string {
	s, _ := v.(string)
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
