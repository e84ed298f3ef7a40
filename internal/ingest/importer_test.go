package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courier-analytics/api/internal/db"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
	"github.com/courier-analytics/api/internal/store/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestImporter(t *testing.T, opts ...Option) (*Importer, *memstore.Store) {
	t.Helper()
	s := db.NewMemoryStore()
	return NewImporter(s, discardLogger(), opts...), s
}

func day(y int, m time.Month, d int) openapi_types.Date {
	return openapi_types.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

const shipmentsCSV = "Номер Shipment,Країна відправника,Оголошена вартість відправлення,Дата виконання документу PickUp\n" +
	"SH100,Україна,\"1,5 EUR\",31.12.2023\n" +
	",Польща,10,01.01.2024\n"

func TestImportShipmentsSkipsRowsWithoutKey(t *testing.T) {
	im, s := newTestImporter(t)

	res, err := im.Import(context.Background(), Upload{Filename: "shipments.csv", Data: []byte(shipmentsCSV), Kind: KindShipments})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TotalRecords)
	assert.Equal(t, 1, res.ImportedRecords)
	assert.Equal(t, 1, res.SkippedRecords)
	assert.Empty(t, res.Errors)
	assert.NotEmpty(t, res.BatchID)

	rows := s.Rows(model.TableShipments)
	require.Len(t, rows, 1)
	assert.Equal(t, "SH100", rows[0]["shipment_number"])
	assert.Equal(t, 1.5, rows[0]["declared_value"])
	assert.Equal(t, "2023-12-31", rows[0]["pickup_execution_date"])
}

func TestImportShipmentsIsIdempotent(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := im.Import(ctx, Upload{Filename: "shipments.csv", Data: []byte(shipmentsCSV), Kind: KindShipments})
		require.NoError(t, err)
		assert.Equal(t, 1, res.ImportedRecords)
	}
	assert.Len(t, s.Rows(model.TableShipments), 1)
}

func TestImportEventsRequiresReportDate(t *testing.T) {
	im, s := newTestImporter(t)
	data := "Номер Shipment,Дата відомості,Час доставки на дату відомості,Дублікат,ПІБ кур'єра\n" +
		"SH1,05-01-2024,14:05,Так,Anna\n" +
		"SH2,not a date,,,\n"

	res, err := im.Import(context.Background(), Upload{Filename: "events.csv", Data: []byte(data), Kind: KindEvents})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ImportedRecords)
	assert.Equal(t, []string{`Row 3: invalid report_date "not a date"`}, res.Errors)

	rows := s.Rows(model.TableDeliveryEvents)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01-05", rows[0]["report_date"])
	assert.Equal(t, "14:05", rows[0]["delivery_time"])
	assert.Equal(t, true, rows[0]["is_duplicate"])
	assert.Equal(t, "Anna", rows[0]["courier_name"])
}

const deliveriesCSV = "Дата,Кур'єр,Номер авто,Зона,Завантажено,Доставлено\n" +
	"15.01.2024,Anna Koval,AA1111AA,North,20,18\n" +
	"15.01.2024,Boris Lys,,South,abc,3\n" +
	"16.01.2024,anna koval,,north,10,10\n"

func TestImportDeliveriesReportsBadRowsByNumber(t *testing.T) {
	im, s := newTestImporter(t)

	res, err := im.Import(context.Background(), Upload{Filename: "deliveries.csv", Data: []byte(deliveriesCSV), Kind: KindDeliveries})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.TotalRecords)
	assert.Equal(t, 2, res.ImportedRecords)
	assert.GreaterOrEqual(t, res.SkippedRecords, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, `Row 3: invalid loaded_count "abc"`, res.Errors[0])

	couriers := s.Rows(model.TableCouriers)
	require.Len(t, couriers, 1, "names differing only in case resolve to one courier")
	assert.Equal(t, "AA1111AA", couriers[0]["vehicle_number"])
	assert.Len(t, s.Rows(model.TableZones), 1)
	assert.Len(t, s.Rows(model.TableDeliveries), 2)
}

func TestImportDeliveriesSkipsRowsWithoutCourier(t *testing.T) {
	im, s := newTestImporter(t)
	data := "Дата,Кур'єр,Зона,Завантажено,Доставлено\n" +
		"15.01.2024,Anna,North,10,9\n" +
		"15.01.2024,,North,5,5\n" +
		"15.01.2024,nan,South,abc,1\n"

	res, err := im.Import(context.Background(), Upload{Filename: "deliveries.csv", Data: []byte(data), Kind: KindDeliveries})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.TotalRecords)
	assert.Equal(t, 1, res.ImportedRecords)
	assert.Equal(t, 2, res.SkippedRecords)
	assert.Empty(t, res.Errors)
	assert.Len(t, s.Rows(model.TableDeliveries), 1)
}

func TestImportDeliveriesCollapsesSameKeyWithinFile(t *testing.T) {
	im, s := newTestImporter(t)
	data := "date,courier,zone,loaded,delivered\n" +
		"2024-01-15,Anna,North,20,18\n" +
		"2024-01-15,Anna,North,30,25\n"

	res, err := im.Import(context.Background(), Upload{Filename: "d.csv", Data: []byte(data), Kind: KindDeliveries})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.ImportedRecords)

	rows := s.Rows(model.TableDeliveries)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(30), rows[0]["loaded_count"])
}

func TestImportDeliveriesJSONReplaceMode(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	_, err := im.ImportDeliveries(ctx, "", []model.DeliveryImport{
		{DeliveryDate: day(2024, 1, 1), CourierName: "Anna", ZoneName: "North", LoadedCount: 5, DeliveredCount: 5},
		{DeliveryDate: day(2024, 1, 2), CourierName: "Anna", ZoneName: "North", LoadedCount: 5, DeliveredCount: 4},
	}, ModeAppend)
	require.NoError(t, err)
	require.Len(t, s.Rows(model.TableDeliveries), 2)

	res, err := im.ImportDeliveries(ctx, "", []model.DeliveryImport{
		{DeliveryDate: day(2024, 2, 1), CourierName: "Anna", ZoneName: "North", LoadedCount: 8, DeliveredCount: 7},
		{DeliveryDate: day(2024, 2, 2), CourierName: "Anna", ZoneName: "North", LoadedCount: 3, DeliveredCount: 4},
	}, ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImportedRecords)
	assert.Equal(t, []string{"Row 2: delivered_count must be less than or equal to loaded_count"}, res.Errors)

	rows := s.Rows(model.TableDeliveries)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-02-01", rows[0]["delivery_date"])

	_, err = im.ImportDeliveries(ctx, "", nil, ModeAppend)
	assert.ErrorIs(t, err, ErrNoRecords)
}

type failingUpsertStore struct {
	*memstore.Store
}

func (f failingUpsertStore) Upsert(ctx context.Context, table string, conflict []string, rows ...store.Row) ([]store.Row, error) {
	return nil, &store.UpstreamError{Status: 500, Code: "XX000", Message: "disk full"}
}

func TestImportReportsFailedChunks(t *testing.T) {
	s := db.NewMemoryStore()
	im := NewImporter(failingUpsertStore{s}, discardLogger())

	res, err := im.Import(context.Background(), Upload{Filename: "shipments.csv", Data: []byte(shipmentsCSV), Kind: KindShipments})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.ImportedRecords)
	assert.Equal(t, 1, res.FailedRecords)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "Batch insert error: "))

	logs, err := im.Logs().List(context.Background(), "", 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ImportFailed, logs[0].Status)
	assert.Equal(t, 1, logs[0].RecordsFailed)
}

type recordingArchiver struct{ keys []string }

func (a *recordingArchiver) Archive(ctx context.Context, key string, data []byte) error {
	a.keys = append(a.keys, key)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.calls++
	return errors.New("cache down")
}

func TestImportRecordsLogArchivesAndInvalidates(t *testing.T) {
	archiver := &recordingArchiver{}
	inv := &countingInvalidator{}
	im, _ := newTestImporter(t, WithArchiver(archiver), WithInvalidator(inv))
	ctx := context.Background()

	res, err := im.Import(ctx, Upload{Filename: `C:\exports\shipments.csv`, Data: []byte(shipmentsCSV), Kind: KindShipments})
	require.NoError(t, err)
	assert.True(t, res.Success, "cache failures do not fail an import")

	assert.Equal(t, []string{"imports/" + res.BatchID + "/shipments.csv"}, archiver.keys)
	assert.Equal(t, 1, inv.calls)

	log, err := im.Logs().Get(ctx, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportCompleted, log.Status)
	assert.Equal(t, model.FileTypePickup, log.FileType)
	assert.Equal(t, 2, log.RecordsCount)
	assert.Equal(t, 1, log.RecordsImported)
	assert.NotNil(t, log.CompletedAt)
}

func TestImportRejectsOversizedAndUnknownUploads(t *testing.T) {
	im, _ := newTestImporter(t, WithMaxRows(1))
	ctx := context.Background()

	_, err := im.Import(ctx, Upload{Filename: "s.csv", Data: []byte(shipmentsCSV), Kind: KindShipments})
	assert.ErrorIs(t, err, ErrTooManyRows)

	_, err = im.Import(ctx, Upload{Filename: "s.csv", Data: []byte("a\n1\n"), Kind: Kind("parcels")})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = im.Import(ctx, Upload{Filename: "s.bin", Data: []byte{0, 1, 2}, Kind: KindShipments})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAppend, mode)

	mode, err = ParseMode("Replace")
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, mode)

	_, err = ParseMode("merge")
	assert.Error(t, err)
}
