package escpos

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiffzack/printspool/internal/core"
)

// parseRaster splits packRaster output into the data bytes of each band.
func parseRaster(t *testing.T, out []byte) [][]byte {
	t.Helper()
	require.True(t, bytes.HasPrefix(out, lineSpacing(qrLineSpacing)))
	require.True(t, bytes.HasSuffix(out, newline))

	rest := out[3 : len(out)-2]
	var bands [][]byte
	for len(rest) > 0 {
		require.True(t, bytes.HasPrefix(rest, newline), "band must start with a newline")
		header := rest[2:7]
		require.Equal(t, []byte{ESC, '*', 0}, header[:3])
		n := int(header[3]) | int(header[4])<<8
		data := rest[7 : 7+n]
		bands = append(bands, data)
		rest = rest[7+n:]
	}
	return bands
}

func matrixFromText(rows ...string) [][]bool {
	m := make([][]bool, len(rows))
	for i, r := range rows {
		m[i] = make([]bool, len(r))
		for j, c := range r {
			m[i][j] = c == '1'
		}
	}
	return m
}

func TestPackRaster_PacksColumnsTopRowFirst(t *testing.T) {
	m := matrixFromText(
		"10",
		"00",
		"00",
		"00",
		"00",
		"00",
		"00",
		"01",
	)

	bands := parseRaster(t, packRaster(m))
	require.Len(t, bands, 1)
	assert.Equal(t, []byte{0x80, 0x80, 0x01, 0x01}, bands[0])
}

func TestPackRaster_PartialBandReadsMissingRowsAsBlank(t *testing.T) {
	m := matrixFromText(
		"111",
		"000",
		"000",
		"000",
		"000",
		"000",
		"000",
		"000",
		"111",
		"101",
	)

	bands := parseRaster(t, packRaster(m))
	require.Len(t, bands, 2)
	assert.Equal(t, []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80}, bands[0])
	assert.Equal(t, []byte{0xc0, 0xc0, 0x80, 0x80, 0xc0, 0xc0}, bands[1])
}

func TestPackRaster_RemapsLineFeedByte(t *testing.T) {
	// column 0 packs to 0b00001010
	m := matrixFromText(
		"01",
		"00",
		"00",
		"00",
		"10",
		"00",
		"10",
		"00",
	)

	bands := parseRaster(t, packRaster(m))
	require.Len(t, bands, 1)
	assert.Equal(t, []byte{0x0b, 0x0b, 0x80, 0x80}, bands[0])
}

func TestEncodeQR_ByteCountFormula(t *testing.T) {
	for _, payload := range []string{"a", "hello", "_R1-AT0_DEMO-CASH-BOX524_366_2024-01-01T12:00:00", strings.Repeat("9", 300)} {
		out, err := EncodeQR(payload)
		require.NoError(t, err)

		bands := parseRaster(t, out)
		require.NotEmpty(t, bands)

		bytesPerRow := len(bands[0])
		modules := bytesPerRow / 2
		expectedBands := (modules + 7) / 8
		assert.Len(t, bands, expectedBands, payload)

		total := 0
		for _, b := range bands {
			assert.Len(t, b, bytesPerRow)
			total += len(b)
		}
		assert.Equal(t, expectedBands*bytesPerRow, total)
	}
}

func TestEncodeQR_VersionOneSize(t *testing.T) {
	out, err := EncodeQR("hello")
	require.NoError(t, err)

	bands := parseRaster(t, out)
	// 21 modules plus a one module quiet zone on each side
	assert.Len(t, bands[0], 2*23)
	assert.Len(t, bands, 3)
}

func TestEncodeQR_IsDeterministic(t *testing.T) {
	a, err := EncodeQR("receipt 4711")
	require.NoError(t, err)
	b, err := EncodeQR("receipt 4711")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeQR_NeverEmitsLineFeedInRaster(t *testing.T) {
	for i := 0; i < 200; i++ {
		out, err := EncodeQR(strings.Repeat("x", i+1))
		require.NoError(t, err)
		for _, band := range parseRaster(t, out) {
			assert.NotContains(t, band, byte(LF))
		}
	}
}

func TestEncodeQR_DuplicatesEachColumn(t *testing.T) {
	out, err := EncodeQR("dup")
	require.NoError(t, err)
	for _, band := range parseRaster(t, out) {
		for j := 0; j < len(band); j += 2 {
			assert.Equal(t, band[j], band[j+1])
		}
	}
}

func TestEncodeQR_TooLong(t *testing.T) {
	_, err := EncodeQR(strings.Repeat("x", 5000))
	assert.ErrorIs(t, err, core.ErrEncoding)
}
