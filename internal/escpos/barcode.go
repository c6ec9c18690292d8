package escpos

import "strings"

// Symbology is the m parameter of GS k.
type Symbology byte

const (
	EAN13  Symbology = 2
	Code39 Symbology = 4
)

func ParseSymbology(name string) (Symbology, bool) {
	switch strings.ToLower(name) {
	case "", "code39":
		return Code39, true
	case "ean13":
		return EAN13, true
	}
	return 0, false
}

// encodeBarcode wraps an already encoded payload. Check digits and
// lengths are the printer's business.
func encodeBarcode(sym Symbology, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, GS, 'k', byte(sym))
	out = append(out, payload...)
	return append(out, NUL)
}
