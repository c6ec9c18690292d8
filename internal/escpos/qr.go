package escpos

import (
	"bytes"
	"fmt"

	"github.com/skip2/go-qrcode"

	"github.com/wiffzack/printspool/internal/core"
)

const quietZone = 1

// EncodeQR renders payload as a level L QR code in 8-dot bit image bands.
func EncodeQR(payload string) ([]byte, error) {
	code, err := qrcode.New(payload, qrcode.Low)
	if err != nil {
		return nil, fmt.Errorf("%w: qr: %v", core.ErrEncoding, err)
	}
	code.DisableBorder = true

	return packRaster(addQuietZone(code.Bitmap(), quietZone)), nil
}

func addQuietZone(bitmap [][]bool, n int) [][]bool {
	size := len(bitmap) + 2*n
	out := make([][]bool, size)
	for i := range out {
		out[i] = make([]bool, size)
	}
	for y, row := range bitmap {
		copy(out[y+n][n:], row)
	}
	return out
}

// packRaster packs 8 module rows per band, one byte per column with the
// top row in the MSB. Every column byte is sent twice so the code keeps
// its aspect ratio at single density. Rows past the bottom edge read as
// blank.
//
// Some printers (TM-T88) take a raster byte of 0x0A for a line feed and
// break the band, so it is sent as 0x0B and left to QR error correction.
func packRaster(matrix [][]bool) []byte {
	rows := len(matrix)
	if rows == 0 {
		return nil
	}
	width := len(matrix[0])

	var buf bytes.Buffer
	buf.Write(lineSpacing(qrLineSpacing))

	for i := 0; i < rows; i += 8 {
		buf.Write(newline)
		buf.Write(bitImage(width * 2))
		for j := 0; j < width; j++ {
			var b byte
			for k := 0; k < 8; k++ {
				b <<= 1
				if r := i + k; r < rows && j < len(matrix[r]) && matrix[r][j] {
					b |= 1
				}
			}
			if b == LF {
				b = 0x0b
			}
			buf.WriteByte(b)
			buf.WriteByte(b)
		}
	}

	buf.Write(newline)
	return buf.Bytes()
}
