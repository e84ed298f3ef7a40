package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/jinzhu/now"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/courier-analytics/api/internal/config"
	"github.com/courier-analytics/api/internal/db"
	"github.com/courier-analytics/api/internal/ingest"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store/pgstore"
)

var (
	couriers = []struct{ name, vehicle string }{
		{"Anna Koval", "AA1111AA"},
		{"Boris Lysenko", "AA2222BB"},
		{"Olena Marchenko", "KA3333CC"},
		{"Petro Shevchuk", "KA4444EE"},
		{"Iryna Bondar", "AI5555KK"},
	}
	zones = []string{"North", "South", "Center", "Left Bank", "Suburbs"}
)

func main() {
	days := flag.Int("days", 30, "number of days of demo deliveries ending today")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	importer := ingest.NewImporter(pgstore.New(db.OpenDB(pool), cfg.StoreTimeout), logger)
	rng := rand.New(rand.NewPCG(*seed, *seed))
	today := now.BeginningOfDay()

	res, err := importer.ImportDeliveries(ctx, "seed-deliveries", deliveries(rng, today, *days), ingest.ModeAppend)
	if err != nil {
		logger.Error("seed deliveries", "error", err)
		os.Exit(1)
	}
	logger.Info("seeded_deliveries", "imported", res.ImportedRecords, "skipped", res.SkippedRecords, "batch_id", res.BatchID)

	summary, err := importer.ImportPerformance(ctx, "seed-performance", performance(rng, today, *days))
	if err != nil {
		logger.Error("seed performance", "error", err)
		os.Exit(1)
	}
	logger.Info("seeded_performance", "imported", summary.Imported, "failed", summary.Failed, "batch_id", summary.BatchID)
}

func date(t time.Time) openapi_types.Date {
	return openapi_types.Date{Time: t}
}

// deliveries gives every courier a shift in a random zone on six days of seven.
func deliveries(rng *rand.Rand, today time.Time, days int) []model.DeliveryImport {
	var out []model.DeliveryImport
	for d := days - 1; d >= 0; d-- {
		day := today.AddDate(0, 0, -d)
		for i, c := range couriers {
			if (d+i)%7 == 6 {
				continue
			}
			loaded := 20 + rng.IntN(30)
			vehicle := c.vehicle
			out = append(out, model.DeliveryImport{
				DeliveryDate:   date(day),
				CourierName:    c.name,
				VehicleNumber:  &vehicle,
				ZoneName:       zones[rng.IntN(len(zones))],
				LoadedCount:    loaded,
				DeliveredCount: loaded - rng.IntN(loaded/5+1),
			})
		}
	}
	return out
}

func performance(rng *rand.Rand, today time.Time, days int) []model.CourierPerformanceInput {
	var out []model.CourierPerformanceInput
	for d := days - 1; d >= 0; d-- {
		day := today.AddDate(0, 0, -d)
		for _, c := range couriers {
			loaded := 30 + rng.IntN(40)
			delivered := loaded - rng.IntN(loaded/6+1)
			undelivered := loaded - delivered
			withReason := rng.IntN(undelivered + 1)
			vehicle := c.vehicle
			out = append(out, model.CourierPerformanceInput{
				ReportDate:            date(day),
				CourierName:           c.name,
				CarNumber:             &vehicle,
				ReportsCount:          1,
				AddressesCount:        delivered - rng.IntN(delivered/4+1),
				LoadedParcels:         loaded,
				DeliveredParcels:      delivered,
				DeliveredInHand:       delivered * 3 / 4,
				DeliveredSafePlace:    delivered - delivered*3/4,
				UndeliveredParcels:    undelivered,
				UndeliveredWithReason: withReason,
				UndeliveredNoReason:   undelivered - withReason,
				DeliverySuccessRate:   model.SuccessRate(int64(delivered), int64(loaded)),
			})
		}
	}
	return out
}
