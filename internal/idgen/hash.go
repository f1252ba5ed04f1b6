// Package idgen synthesizes short content-derived identifiers.
package idgen

import (
	"crypto/sha256"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// EncodeBase36 renders data as a big-endian number in lower-case base36,
// left-padded with zeros to width or cut down to its last width digits.
func EncodeBase36(data []byte, width int) string {
	s := new(big.Int).SetBytes(data).Text(36)
	if n := len(s); n > width {
		return s[n-width:]
	}
	return strings.Repeat("0", width-len(s)) + s
}

// ArchiveID names an archived resource. Equal action, path and instant give
// equal ids.
func ArchiveID(actionKey, path string, at time.Time) string {
	h := sha256.New()
	h.Write([]byte(actionKey))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
	sum := h.Sum(nil)
	return "ARCH-" + strings.ToUpper(EncodeBase36(sum[:6], 8))
}
