package tickets

import (
	"github.com/skip2/go-qrcode"
)

const (
	DefaultQRSize = 256
	MaxQRSize     = 1024
)

// QRCode renders content as a PNG. size is clamped to [64, MaxQRSize].
func QRCode(content string, size int) ([]byte, error) {
	switch {
	case size <= 0:
		size = DefaultQRSize
	case size < 64:
		size = 64
	case size > MaxQRSize:
		size = MaxQRSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
