package escpos

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

var codepages = map[string]*charmap.Charmap{
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"cp858":        charmap.CodePage858,
	"windows-1252": charmap.Windows1252,
}

func lookupCodepage(name string) (*charmap.Charmap, error) {
	if name == "" {
		return charmap.ISO8859_1, nil
	}
	cm, ok := codepages[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported codepage %q", name)
	}
	return cm, nil
}

// encodeText maps s onto the printer's single-byte code page, replacing
// runes it cannot represent with '?'.
func encodeText(cm *charmap.Charmap, s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := cm.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}
