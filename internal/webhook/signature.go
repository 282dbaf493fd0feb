package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math"
	"strconv"
	"time"
)

const (
	// SignatureHeader carries the hex HMAC of "{timestamp}.{body}".
	SignatureHeader = "X-Signature"
	// TimestampHeader carries the unix seconds used in the signature.
	TimestampHeader = "X-Timestamp"
	// ReplayWindow bounds the accepted clock distance between signer and verifier.
	ReplayWindow = 300 * time.Second
)

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{payload}".
func Sign(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks freshness first, then the signature in constant time.
func Verify(payload []byte, secret, signature string, timestamp int64, now time.Time) bool {
	skew := math.Abs(float64(now.Unix() - timestamp))
	if skew > ReplayWindow.Seconds() {
		return false
	}
	return SecureCompare(Sign(payload, secret, timestamp), signature)
}

// SecureCompare compares two secrets without leaking the mismatch position.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ParseTimestamp reads the X-Timestamp header value.
func ParseTimestamp(value string) (int64, bool) {
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
