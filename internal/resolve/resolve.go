// Package resolve maps courier and zone names to ids, creating missing
// entities in bulk.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

type Kind int

const (
	Couriers Kind = iota
	Zones
)

func (k Kind) String() string {
	if k == Zones {
		return "zone"
	}
	return "courier"
}

func (k Kind) table() string {
	if k == Zones {
		return model.TableZones
	}
	return model.TableCouriers
}

func (k Kind) nameColumn() string {
	if k == Zones {
		return "name"
	}
	return "full_name"
}

func (k Kind) newRow(c Candidate) store.Row {
	if k == Zones {
		return store.Row{"name": c.Name}
	}
	row := store.Row{"full_name": c.Name, "is_active": true}
	if c.VehicleNumber != nil {
		row["vehicle_number"] = *c.VehicleNumber
	}
	return row
}

// Candidate is a name seen in an import. VehicleNumber is only used when a
// courier is created.
type Candidate struct {
	Name          string
	VehicleNumber *string
}

// Index maps match keys to entity ids.
type Index map[string]string

func (ix Index) Lookup(name string) (string, bool) {
	id, ok := ix[model.MatchKey(name)]
	return id, ok
}

type Resolver struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, logger: logger}
}

// Resolve returns ids for every candidate it could match or create. It fetches
// existing entities once and inserts all missing ones in a single call. A
// concurrent creator winning a uniqueness race is handled by re-fetching and
// retrying once. Names that still cannot be created are left out of the index.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, candidates []Candidate) (Index, error) {
	index, err := r.fetchIndex(ctx, kind)
	if err != nil {
		return nil, err
	}

	missing := r.missing(index, candidates)
	for attempt := 0; len(missing) > 0 && attempt < 2; attempt++ {
		rows := make([]store.Row, 0, len(missing))
		for _, c := range missing {
			rows = append(rows, kind.newRow(c))
		}
		created, err := r.store.Insert(ctx, kind.table(), rows...)
		if err == nil {
			r.addRows(index, kind, created)
			r.logger.Info("entities_created", "kind", kind.String(), "count", len(created))
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			r.logger.Warn("entity_create_failed", "kind", kind.String(), "count", len(rows), "error", err)
			break
		}
		index, err = r.fetchIndex(ctx, kind)
		if err != nil {
			return nil, err
		}
		missing = r.missing(index, candidates)
	}
	return index, nil
}

func (r *Resolver) fetchIndex(ctx context.Context, kind Kind) (Index, error) {
	rows, err := r.store.Fetch(ctx, kind.table(), store.Query{Columns: []string{"id", kind.nameColumn()}})
	if err != nil {
		return nil, fmt.Errorf("fetch %ss: %w", kind, err)
	}
	index := make(Index, len(rows))
	r.addRows(index, kind, rows)
	return index, nil
}

func (r *Resolver) addRows(index Index, kind Kind, rows []store.Row) {
	for _, row := range rows {
		key := model.MatchKey(row.String(kind.nameColumn()))
		if key == "" {
			continue
		}
		if _, exists := index[key]; !exists {
			index[key] = row.String("id")
		}
	}
}

// missing returns one candidate per unmatched key, keeping the first spelling
// and the first non-empty vehicle number seen.
func (r *Resolver) missing(index Index, candidates []Candidate) []Candidate {
	var out []Candidate
	pos := map[string]int{}
	for _, c := range candidates {
		key := model.MatchKey(c.Name)
		if key == "" {
			continue
		}
		if _, ok := index[key]; ok {
			continue
		}
		if i, seen := pos[key]; seen {
			if out[i].VehicleNumber == nil {
				out[i].VehicleNumber = c.VehicleNumber
			}
			continue
		}
		pos[key] = len(out)
		c.Name = strings.TrimSpace(c.Name)
		out = append(out, c)
	}
	return out
}
