package helpers

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	ReferencePrefix = "BK"
	referenceSuffix = 6
	base36Alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewBookingReference builds BK + base36(unix millis) + 6 random base36
// characters, e.g. BKLZ3K9Q1C7F2XA9.
func NewBookingReference(now time.Time) (string, error) {
	var sb strings.Builder
	sb.WriteString(ReferencePrefix)
	sb.WriteString(strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)))

	max := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < referenceSuffix; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(base36Alphabet[n.Int64()])
	}
	return sb.String(), nil
}
