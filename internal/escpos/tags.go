package escpos

type tag int

const (
	tagUnknown tag = iota
	tagP
	tagU
	tagB
	tagCenter
	tagFont
	tagQR
	tagBar
	tagBr
	tagHr
	tagNonPrintable
)

var tagNames = map[string]tag{
	"p":      tagP,
	"u":      tagU,
	"b":      tagB,
	"center": tagCenter,
	"font":   tagFont,
	"qr":     tagQR,
	"bar":    tagBar,
	"br":     tagBr,
	"hr":     tagHr,
	"style":  tagNonPrintable,
	"script": tagNonPrintable,
	"title":  tagNonPrintable,
}

func lookupTag(name string) tag {
	if t, ok := tagNames[name]; ok {
		return t
	}
	return tagUnknown
}

// void tags never go on the stack, whether or not they are written
// self-closing.
func (t tag) void() bool {
	return t == tagBr || t == tagHr
}

type alignment int

const (
	alignNone alignment = iota
	alignL
	alignC
	alignR
)

func parseAlign(v string) alignment {
	switch v {
	case "right":
		return alignR
	case "center":
		return alignC
	default:
		return alignL
	}
}

func (a alignment) command() []byte {
	switch a {
	case alignR:
		return alignRight
	case alignC:
		return alignCenter
	default:
		return alignLeft
	}
}
