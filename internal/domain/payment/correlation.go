package payment

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strconv"
	"time"
)

const (
	correlationPrefix    = "CHK"
	correlationSuffixLen = 7
	base36Alphabet       = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var correlationPattern = regexp.MustCompile(`^CHK[0-9]+[0-9a-z]{7}$`)

// NewCorrelationID returns CHK<unix millis><7 base36 chars>. Practical
// collision avoidance only; the unique index on payments is the real guard.
func NewCorrelationID(now time.Time) string {
	buf := make([]byte, 0, len(correlationPrefix)+13+correlationSuffixLen)
	buf = append(buf, correlationPrefix...)
	buf = strconv.AppendInt(buf, now.UnixMilli(), 10)

	radix := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < correlationSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			// crypto/rand does not fail on supported platforms; fall back to the clock.
			n = big.NewInt(now.UnixNano() % int64(len(base36Alphabet)))
		}
		buf = append(buf, base36Alphabet[n.Int64()])
	}
	return string(buf)
}

// IsCorrelationID reports whether s has the shape produced by NewCorrelationID.
func IsCorrelationID(s string) bool {
	return correlationPattern.MatchString(s)
}
