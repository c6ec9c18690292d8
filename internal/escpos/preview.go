package escpos

import (
	"strconv"
)

// Preview returns the document as plain markup in the printer code page:
// line breaks removed, entities kept, no printer commands. Runes outside
// the code page become numeric character references so the markup stays
// lossless.
func (r *Renderer) Preview(doc string) ([]byte, error) {
	out := make([]byte, 0, len(doc))
	for _, c := range doc {
		if c == '\n' || c == '\r' {
			continue
		}
		if b, ok := r.charset.EncodeRune(c); ok {
			out = append(out, b)
			continue
		}
		out = append(out, "&#"...)
		out = strconv.AppendInt(out, int64(c), 10)
		out = append(out, ';')
	}
	return out, nil
}
