package escpos

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"

	"github.com/wiffzack/printspool/internal/config"
)

const defaultColumns = 56

// Renderer turns the receipt markup subset into an ESC/POS stream. It holds
// only configuration and is safe for concurrent use.
type Renderer struct {
	charset     *charmap.Charmap
	lineSpacing byte
	columns     int
	barcode     Symbology
}

func New(cfg config.RenderConfig) (*Renderer, error) {
	cm, err := lookupCodepage(cfg.Codepage)
	if err != nil {
		return nil, err
	}
	sym, ok := ParseSymbology(cfg.Barcode)
	if !ok {
		return nil, fmt.Errorf("unsupported barcode symbology %q", cfg.Barcode)
	}
	columns := cfg.Columns
	if columns < 1 {
		columns = defaultColumns
	}
	if cfg.LineSpacing < 0 || cfg.LineSpacing > 255 {
		return nil, fmt.Errorf("line spacing %d out of range", cfg.LineSpacing)
	}

	return &Renderer{
		charset:     cm,
		lineSpacing: byte(cfg.LineSpacing),
		columns:     columns,
		barcode:     sym,
	}, nil
}

// Render never fails on malformed markup. The only error is a QR payload
// that cannot be encoded.
func (r *Renderer) Render(doc string) ([]byte, error) {
	st := r.newState()

	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return st.out.Bytes(), st.err
		case html.TextToken:
			st.text(string(z.Text()))
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			st.open(string(name), readAttrs(z, hasAttr))
		case html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			st.selfClosing(string(name), readAttrs(z, hasAttr))
		case html.EndTagToken:
			name, _ := z.TagName()
			st.close(string(name))
		}
	}
}

type attr struct {
	key, val string
}

func readAttrs(z *html.Tokenizer, more bool) []attr {
	var attrs []attr
	for more {
		var k, v []byte
		k, v, more = z.TagAttr()
		attrs = append(attrs, attr{key: string(k), val: string(v)})
	}
	return attrs
}

func attrValue(attrs []attr, key string) (string, bool) {
	for _, a := range attrs {
		if a.key == key {
			return a.val, true
		}
	}
	return "", false
}

type stackEntry struct {
	tag     tag
	name    string
	attrs   []attr
	aligned bool
}

// renderState is owned by a single Render call.
type renderState struct {
	r *Renderer

	stack       []stackEntry
	align       alignment
	baseColumns int
	scaleWidth  int
	columns     int
	out         bytes.Buffer
	err         error
}

func (r *Renderer) newState() *renderState {
	st := &renderState{
		r:           r,
		align:       alignL,
		baseColumns: r.columns,
		scaleWidth:  1,
		columns:     r.columns,
	}
	st.out.Write(hwInit)
	st.out.Write(selectMode)
	st.out.Write(lineSpacing(r.lineSpacing))
	return st
}

func (st *renderState) open(name string, attrs []attr) {
	t := lookupTag(name)
	if t.void() {
		st.emitVoid(t, attrs)
		return
	}

	entry := stackEntry{tag: t, name: name, attrs: attrs}
	if v, ok := attrValue(attrs, "align"); ok {
		st.align = parseAlign(v)
		st.out.Write(st.align.command())
		entry.aligned = true
	}

	switch t {
	case tagU:
		st.out.Write(underlineOn)
	case tagB:
		st.out.Write(boldOn)
	case tagCenter:
		st.align = alignC
		st.out.Write(alignCenter)
	case tagFont:
		st.font(attrs)
	case tagBar:
		if v, ok := attrValue(attrs, "height"); ok {
			if h, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && h >= 0 && h <= 255 {
				st.out.Write(barcodeHeight(byte(h)))
			}
		}
	}

	st.stack = append(st.stack, entry)
}

// selfClosing handles <x/>. Only the void tags produce output; other
// self-closed tags open nothing and are dropped.
func (st *renderState) selfClosing(name string, attrs []attr) {
	if t := lookupTag(name); t.void() {
		st.emitVoid(t, attrs)
	}
}

// close pops up to and including the innermost open tag called name.
// Tags still open above it are closed first. A name that is not open is
// ignored.
func (st *renderState) close(name string) {
	idx := -1
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i].name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	for len(st.stack) > idx {
		entry := st.stack[len(st.stack)-1]
		st.stack = st.stack[:len(st.stack)-1]
		st.closeEntry(entry)
	}
}

func (st *renderState) closeEntry(e stackEntry) {
	switch e.tag {
	case tagP:
		st.out.Write(newline)
	case tagU:
		st.out.Write(underlineOff)
	case tagB:
		st.out.Write(boldOff)
	case tagCenter:
		st.align = alignL
		st.out.Write(alignLeft)
	}

	if e.aligned {
		st.align = alignL
		st.out.Write(alignLeft)
	}
}

func (st *renderState) emitVoid(t tag, attrs []attr) {
	if t == tagBr {
		st.out.Write(newline)
		return
	}

	for _, a := range attrs {
		if a.key == "size" && a.val == "2" {
			st.rule('=')
			return
		}
		if a.key == "class" && a.val == "paper_full_cut" {
			st.out.Write(paperCut)
			return
		}
	}
	st.rule('-')
}

func (st *renderState) rule(c byte) {
	st.out.Write(bytes.Repeat([]byte{c}, st.columns))
	st.out.Write(newline)
}

func (st *renderState) font(attrs []attr) {
	if v, ok := attrValue(attrs, "face"); ok {
		if face, known := fontFaces[strings.ToLower(strings.TrimSpace(v))]; known {
			st.out.Write(selectFont(face.selector))
			st.baseColumns = face.columns
		}
	}
	if v, ok := attrValue(attrs, "size"); ok {
		if w, h, valid := parseScale(v); valid {
			st.out.Write(glyphScale(scaleByte(w, h)))
			st.scaleWidth = w
		}
	}
	if v, ok := attrValue(attrs, "spacing"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 && n <= 255 {
			st.out.Write(lineSpacing(byte(n)))
		}
	}
	st.columns = max(st.baseColumns/st.scaleWidth, 1)
}

func (st *renderState) text(data string) {
	if len(st.stack) == 0 {
		return
	}

	top := st.stack[len(st.stack)-1]
	switch top.tag {
	case tagNonPrintable:
		return
	case tagQR:
		if strings.TrimSpace(data) == "" {
			return
		}
		raster, err := EncodeQR(data)
		if err != nil {
			if st.err == nil {
				st.err = err
			}
			return
		}
		st.out.Write(raster)
	case tagBar:
		if strings.TrimSpace(data) == "" {
			return
		}
		sym := st.r.barcode
		if v, ok := attrValue(top.attrs, "type"); ok {
			if s, known := ParseSymbology(v); known {
				sym = s
			}
		}
		st.out.Write(encodeBarcode(sym, encodeText(st.r.charset, data)))
	default:
		if strings.TrimSpace(data) == "" {
			return
		}
		st.out.Write(encodeText(st.r.charset, data))
	}
}
