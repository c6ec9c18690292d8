package escpos_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiffzack/printspool/internal/config"
	"github.com/wiffzack/printspool/internal/core"
	"github.com/wiffzack/printspool/internal/escpos"
	"github.com/wiffzack/printspool/internal/invoice"
)

type staticInvoices []core.InvoiceRow

func (s staticInvoices) FetchInvoiceRows(context.Context, int64) ([]core.InvoiceRow, error) {
	return s, nil
}

func beerAndWine() staticInvoices {
	date := time.Date(2024, 3, 9, 18, 42, 0, 0, time.UTC)
	line := func(qty int, desc, amount, code, tax, taxDesc string) core.InvoiceRow {
		return core.InvoiceRow{
			InvoiceNumber:  4711,
			Date:           date,
			Quantity:       qty,
			Amount:         decimal.RequireFromString(amount),
			Description:    desc,
			InvoiceTotal:   decimal.RequireFromString("12.00"),
			TaxCode:        code,
			TaxAmount:      decimal.RequireFromString(tax),
			TaxDescription: taxDesc,
			TableCode:      "T12",
			StaffID:        "anna",
			RegisterID:     "DEMO-CASH-BOX524",
			CashNumber:     "366",
			QRPayload:      "_R1-AT0_DEMO-CASH-BOX524_366",
		}
	}
	return staticInvoices{
		line(2, "Beer", "7.00", "A", "0.64", "10%"),
		line(1, "Wine", "5.00", "B", "0.83", "20%"),
	}
}

func newPipeline(t *testing.T) *core.PrintService {
	t.Helper()
	r, err := escpos.New(config.RenderConfig{Codepage: "iso-8859-1", LineSpacing: 10, Columns: 56, Barcode: "code39"})
	require.NoError(t, err)
	return core.NewPrintService(beerAndWine(), invoice.NewFileTemplateStore(t.TempDir()), r, nil)
}

func TestPipeline_BeerAndWineReceipt(t *testing.T) {
	svc := newPipeline(t)

	a, err := svc.Build(context.Background(), 4711, "invoice", core.OutputEscPos)
	require.NoError(t, err)
	out := a.Data

	require.True(t, bytes.HasPrefix(out, []byte{0x1b, '@', 0x1b, '!', 0x01, 0x1b, '3', 10}))
	assert.True(t, bytes.HasSuffix(out, []byte{0x1d, 'V', 0}), "receipt ends with a cut")

	beer := bytes.Index(out, []byte("2  x Beer"))
	wine := bytes.Index(out, []byte("1  x Wine"))
	require.NotEqual(t, -1, beer)
	require.NotEqual(t, -1, wine)
	assert.Less(t, beer, wine)

	assert.Equal(t, 1, bytes.Count(out, []byte("A: 10% MwSt. von 7.00 = 0.64")))
	assert.Equal(t, 1, bytes.Count(out, []byte("B: 20% MwSt. von 5.00 = 0.83")))
	assert.Equal(t, 2, bytes.Count(out, []byte("MwSt. von")))

	// Raster bytes are doubled, so 0x7B columns legitimately read as "{{".
	raster := bytes.Index(out, []byte{0x1b, '*', 0})
	require.NotEqual(t, -1, raster, "receipt carries a QR raster")
	assert.NotContains(t, string(out[:raster]), "{{")
	assert.NotContains(t, string(out), "{{qrCode")
	assert.NotContains(t, string(out), "Rechnung 4711", "title text is not printed")
	assert.Equal(t, "anna", a.StaffID)
}

func TestPipeline_HeadingScaleIsReset(t *testing.T) {
	svc := newPipeline(t)

	a, err := svc.Build(context.Background(), 4711, "invoice", core.OutputEscPos)
	require.NoError(t, err)
	out := a.Data

	heading := bytes.Index(out, []byte("Rechnung"))
	raster := bytes.Index(out, []byte{0x1b, '*', 0})
	require.NotEqual(t, -1, heading)
	require.Greater(t, raster, heading)
	body := out[heading:raster]

	scales := bytes.Split(body, []byte{0x1d, '!'})
	require.Greater(t, len(scales), 1, "heading scale is followed by a reset")
	last := scales[len(scales)-1]
	require.NotEmpty(t, last)
	assert.Equal(t, byte(0x00), last[0], "body prints at normal size")

	var rules int
	for _, line := range strings.Split(string(body), "\n\r") {
		if line == "" || strings.Trim(line, "-=") != "" {
			continue
		}
		rules++
		assert.Len(t, line, 56, "rule spans the full line")
	}
	assert.Equal(t, 5, rules)
}

func TestPipeline_RenderIsIdempotent(t *testing.T) {
	svc := newPipeline(t)

	a, err := svc.Build(context.Background(), 4711, "invoice", core.OutputEscPos)
	require.NoError(t, err)
	b, err := svc.Build(context.Background(), 4711, "invoice", core.OutputEscPos)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestPipeline_PreviewRoundTrip(t *testing.T) {
	svc := newPipeline(t)

	a, err := svc.Build(context.Background(), 4711, "invoice", core.OutputHTML)
	require.NoError(t, err)
	preview := string(a.Data)

	assert.Contains(t, preview, "4711")
	assert.Contains(t, preview, "12.00")
	assert.Contains(t, preview, "2024-03-09 18:42")
	assert.False(t, strings.ContainsAny(preview, "\r\n"))
	assert.NotContains(t, preview, "\x1b")
	assert.Contains(t, preview, "<qr>_R1-AT0_DEMO-CASH-BOX524_366</qr>")
}
