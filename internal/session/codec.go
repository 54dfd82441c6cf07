package session

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// Handler names the PHP session.serialize_handler that produced a payload.
type Handler string

const (
	// HandlerPHP is PHP's default: name|value pairs.
	HandlerPHP Handler = "php"
	// HandlerPHPSerialize stores the whole session as one serialized array.
	HandlerPHPSerialize Handler = "php_serialize"
)

// ParseHandler validates a handler name; "" selects HandlerPHP.
func ParseHandler(name string) (Handler, error) {
	switch Handler(name) {
	case "", HandlerPHP:
		return HandlerPHP, nil
	case HandlerPHPSerialize:
		return HandlerPHPSerialize, nil
	default:
		return "", fmt.Errorf("unknown session serialize handler %q (expected: php, php_serialize)", name)
	}
}

// Codec decodes stored session payloads.
type Codec struct {
	Handler Handler
}

// NewCodec returns a Codec for h.
func NewCodec(h Handler) *Codec {
	return &Codec{Handler: h}
}

// Decode base64-decodes raw and unserializes the result. Every failure
// wraps ErrDecode and no partial result is returned.
func (c *Codec) Decode(raw []byte) (Decoded, error) {
	payload, err := decodeBase64(raw)
	if err != nil {
		return nil, decodeErr("base64: %v", err)
	}

	switch c.Handler {
	case HandlerPHPSerialize:
		v, err := Unserialize(payload)
		if err != nil {
			return nil, decodeErr("%v", err)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, decodeErr("payload is %T, not an array", v)
		}
		return Decoded(m), nil

	case HandlerPHP, "":
		m, err := UnserializeSession(payload)
		if err != nil {
			return nil, decodeErr("%v", err)
		}
		return Decoded(m), nil

	default:
		return nil, decodeErr("unknown handler %q", c.Handler)
	}
}

func decodeBase64(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	// RawStdEncoding needs the larger buffer for the same input length.
	out := make([]byte, base64.RawStdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(out, raw)
	if err == nil {
		return out[:n], nil
	}
	// some writers drop the padding
	n, rawErr := base64.RawStdEncoding.Decode(out, raw)
	if rawErr != nil {
		return nil, err
	}
	return out[:n], nil
}
