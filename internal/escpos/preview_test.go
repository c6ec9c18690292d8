package escpos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview_StripsLineBreaksAndKeepsMarkup(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.Preview("<p>Rechnung 4711</p>\r\n<p>A &amp; B</p>\n")
	require.NoError(t, err)
	assert.Equal(t, "<p>Rechnung 4711</p><p>A &amp; B</p>", string(out))
}

func TestPreview_EncodesToCodepage(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.Preview("<p>Grüße 5€</p>")
	require.NoError(t, err)
	assert.Equal(t, []byte("<p>Gr\xfc\xdfe 5&#8364;</p>"), out)
}

func TestPreview_NoPrinterCommands(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.Preview(`<center><b>x</b></center><hr class="paper_full_cut" />`)
	require.NoError(t, err)
	assert.NotContains(t, string(out), string([]byte{ESC}))
	assert.NotContains(t, string(out), string([]byte{GS}))
}

func TestParseSymbology(t *testing.T) {
	sym, ok := ParseSymbology("")
	assert.True(t, ok)
	assert.Equal(t, Code39, sym)

	sym, ok = ParseSymbology("EAN13")
	assert.True(t, ok)
	assert.Equal(t, EAN13, sym)

	_, ok = ParseSymbology("upc")
	assert.False(t, ok)
}

func TestParseScale(t *testing.T) {
	w, h, ok := parseScale("3")
	assert.True(t, ok)
	assert.Equal(t, 3, w)
	assert.Equal(t, 3, h)

	w, h, ok = parseScale("2x4")
	assert.True(t, ok)
	assert.Equal(t, 2, w)
	assert.Equal(t, 4, h)
	assert.Equal(t, byte(0x13), scaleByte(w, h))

	_, _, ok = parseScale("0")
	assert.False(t, ok)
	_, _, ok = parseScale("big")
	assert.False(t, ok)
}
