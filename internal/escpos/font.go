package escpos

import (
	"strconv"
	"strings"
)

type fontFace struct {
	selector byte
	columns  int
}

// Columns per line on 80mm paper.
var fontFaces = map[string]fontFace{
	"a": {selector: 0, columns: 42},
	"b": {selector: 1, columns: 56},
}

// parseScale reads a glyph scale as "N" (both directions) or "WxH".
// Multipliers range 1..8.
func parseScale(v string) (width, height int, ok bool) {
	w, h, found := strings.Cut(strings.ToLower(v), "x")
	if !found {
		h = w
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, false
	}
	height, err = strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, false
	}
	if width < 1 || width > 8 || height < 1 || height > 8 {
		return 0, 0, false
	}
	return width, height, true
}

func scaleByte(width, height int) byte {
	return byte((width-1)<<4 | (height - 1))
}
