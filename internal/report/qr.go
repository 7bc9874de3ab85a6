package report

import (
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

var errEmptyDigest = errors.New("report: manifest digest is empty")

// DigestQR encodes a manifest digest as a PNG QR code. Anything that is
// not a hex digit is dropped before encoding.
func DigestQR(digest string, size int) ([]byte, error) {
	hex := sanitizeDigest(digest)
	if hex == "" {
		return nil, errEmptyDigest
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(hex, qrcode.Medium, size)
}

func sanitizeDigest(digest string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(digest) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
