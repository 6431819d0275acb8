package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// fingerprintVersion is hashed into every fingerprint so that changes to
// the canonical serialization invalidate old cache entries automatically.
const fingerprintVersion = "v1"

// Fingerprint is a fixed-length hex digest of a canonical request
// serialization. Two semantically identical requests always produce the
// same fingerprint; it is the cache key.
type Fingerprint string

// String returns the hex digest.
func (f Fingerprint) String() string { return string(f) }

// Short returns a truncated digest for log output.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

// FingerprintOf computes the deterministic cache key for a request.
//
// The hashed input is `version|engine_id|k=v|k=v|...` with parameter keys
// sorted bytewise. Precision is deliberately excluded: a result computed at
// high precision is a valid answer for a standard-precision request with
// the same parameters.
func FingerprintOf(req Request) Fingerprint {
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fingerprintVersion)
	b.WriteByte('|')
	b.WriteString(req.EngineID)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(req.Params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// FormatFloat renders a float in the canonical form used for request
// parameters. The shortest representation that round-trips is used, so
// 12.50 and 12.5 canonicalize identically.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatInt renders an integer parameter canonically.
func FormatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

// FormatTime renders a timestamp parameter canonically: RFC 3339 in UTC,
// second precision. Stable across processes and timezones.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
