package escpos

// ESC/POS control bytes and command sequences.
const (
	ESC = 0x1b
	GS  = 0x1d
	LF  = 0x0a
	CR  = 0x0d
	NUL = 0x00
)

var (
	newline = []byte{LF, CR}

	hwInit       = []byte{ESC, '@'}
	selectMode   = []byte{ESC, '!', 0x01}
	underlineOn  = []byte{ESC, '-', 1}
	underlineOff = []byte{ESC, '-', 0}
	boldOn       = []byte{ESC, 'E', 1}
	boldOff      = []byte{ESC, 'E', 0}
	alignLeft    = []byte{ESC, 'a', 0}
	alignCenter  = []byte{ESC, 'a', 1}
	alignRight   = []byte{ESC, 'a', 2}
	paperCut     = []byte{GS, 'V', 0}
)

const qrLineSpacing = 24

func lineSpacing(n byte) []byte { return []byte{ESC, '3', n} }

func selectFont(n byte) []byte { return []byte{ESC, 'M', n} }

func glyphScale(n byte) []byte { return []byte{GS, '!', n} }

func barcodeHeight(n byte) []byte { return []byte{GS, 'h', n} }

// bitImage starts an 8-dot single density raster line of width columns.
func bitImage(width int) []byte {
	return []byte{ESC, '*', 0, byte(width & 0xff), byte(width >> 8 & 0xff)}
}
