// Package session models stored session rows and decodes their payload.
//
// Rows come from a PHP application's session table: session_data holds the
// base64 encoding of what PHP's session serializer produced. Only the parts
// needed to classify a session are exposed; everything else stays an
// opaque map.
package session

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// ValidatorKey is the session entry where the framework keeps the data
	// used to validate a session, including the client's user agent.
	ValidatorKey = "_session_validator_data"
	// UserAgentKey is the user agent entry inside ValidatorKey.
	UserAgentKey = "http_user_agent"
)

// ErrDecode marks any failure to turn a stored payload into a Decoded.
var ErrDecode = errors.New("session payload cannot be decoded")

// Record is one row of the session table.
//
// ExpiresAt holds the session_expires column as stored. It is compared
// against the inactivity lifetime as if it were the creation time; see
// DESIGN.md for why the literal arithmetic is kept. NoExpiry is set when
// the column is NULL; such a row has no age.
type Record struct {
	ID        string
	ExpiresAt int64
	NoExpiry  bool
	Data      []byte
}

// Decoded is the structured content of one session.
type Decoded map[string]any

// UserAgent returns the user agent recorded under
// _session_validator_data.http_user_agent. ok is false when the path is
// absent, null or holds a non-scalar value.
func (d Decoded) UserAgent() (agent string, ok bool) {
	validator, ok := d[ValidatorKey].(map[string]any)
	if !ok {
		return "", false
	}

	switch v := validator[UserAgentKey].(type) {
	case string:
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		// PHP casts true to "1" and false to ""
		if v {
			return "1", true
		}
		return "", true
	default:
		return "", false
	}
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}
