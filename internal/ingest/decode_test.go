package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func TestDecodeUTF8CSVWithBOMAndSemicolons(t *testing.T) {
	data := []byte("\xEF\xBB\xBFНомер Shipment;Країна відправника\nSH1;Україна\n\nSH2;Польща\n")
	sheet, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Номер Shipment", "Країна відправника"}, sheet.Header)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "Польща", sheet.Rows[1][1])
}

func TestDecodeWindows1251CSV(t *testing.T) {
	text, err := charmap.Windows1251.NewEncoder().String("Номер Shipment,Країна відправника\nSH1,Україна\n")
	require.NoError(t, err)

	sheet, err := Decode([]byte(text))
	require.NoError(t, err)
	records, err := sheet.Bind(KindShipments)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Україна", records[0].Get("sender_country"))
}

func TestDecodeXLSXKeepsDateCellsAsSerials(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheetName := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheetName, "A1", &[]any{"Номер Shipment", "Дата виконання документу PickUp", "Оголошена вартість відправлення"}))
	require.NoError(t, f.SetSheetRow(sheetName, "A2", &[]any{"SH1", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), 12.5}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	sheet, err := Decode(buf.Bytes())
	require.NoError(t, err)
	records, err := sheet.Bind(KindShipments)
	require.NoError(t, err)
	require.Len(t, records, 1)

	shipment, err := mapShipment(records[0])
	require.NoError(t, err)
	require.NotNil(t, shipment.PickupExecutionDate)
	assert.Equal(t, "2023-12-31", shipment.PickupExecutionDate.Time.Format(time.DateOnly))
	assert.Equal(t, 12.5, shipment.DeclaredValue)
}

func TestDecodeXLSXFormatsTimeCells(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheetName := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheetName, "A1", &[]any{"Номер Shipment", "Час доставки", "Кількість"}))
	require.NoError(t, f.SetSheetRow(sheetName, "A2", &[]any{"SH1", 0.5, 0.5}))
	require.NoError(t, f.SetSheetRow(sheetName, "A3", &[]any{"SH2", 0.40625, 3}))
	clock, err := f.NewStyle(&excelize.Style{NumFmt: 20})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle(sheetName, "B2", "B3", clock))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	sheet, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "12:00", sheet.Rows[0][1])
	assert.Equal(t, "0.5", sheet.Rows[0][2])
	assert.Equal(t, "09:45", sheet.Rows[1][1])

	got := ParseTime(sheet.Rows[1][1])
	require.NotNil(t, got)
	assert.Equal(t, "09:45", got.String())
}

func TestDecodeRejectsUnreadableInput(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x02, 0xFF})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Decode([]byte("  \n"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestBindRequiresKnownColumns(t *testing.T) {
	sheet, err := Decode([]byte("foo,bar\n1,2\n"))
	require.NoError(t, err)
	_, err = sheet.Bind(KindEvents)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = sheet.Bind(Kind("nope"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestHeaderMatchingIgnoresCaseAndApostropheStyle(t *testing.T) {
	sheet := &Sheet{
		Header: []string{"  пІб  КУР’ЄРА ", "\uFEFFДата"},
		Rows:   [][]string{{"Anna", "01.02.2024"}},
	}
	records, err := sheet.Bind(KindDeliveries)
	require.NoError(t, err)
	assert.Equal(t, "Anna", records[0].Get("courier_name"))
	assert.Equal(t, "01.02.2024", records[0].Get("delivery_date"))
}
