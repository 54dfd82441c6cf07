package session

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// maxDepth bounds nesting of arrays and objects.
const maxDepth = 64

// unserializer reads values in PHP's serialize() format.
type unserializer struct {
	data []byte
	pos  int
}

// Unserialize decodes a single PHP-serialized value. The whole input must
// be consumed.
//
// Arrays and objects decode to map[string]any with keys stringified;
// integers to int64; floats to float64; strings to string; booleans to bool;
// N, r and R to nil. Custom-serialized objects (C:) keep their raw payload
// as a string.
func Unserialize(data []byte) (any, error) {
	u := &unserializer{data: data}
	v, err := u.value(0)
	if err != nil {
		return nil, err
	}
	if u.pos != len(u.data) {
		return nil, u.errorf("unexpected trailing data")
	}
	return v, nil
}

// UnserializeSession decodes the payload of PHP's default "php" session
// handler: name|value pairs concatenated without separators.
func UnserializeSession(data []byte) (map[string]any, error) {
	u := &unserializer{data: data}
	out := make(map[string]any)

	for u.pos < len(u.data) {
		bar := bytes.IndexByte(u.data[u.pos:], '|')
		if bar < 0 {
			return nil, u.errorf("missing '|' after session key")
		}
		name := string(u.data[u.pos : u.pos+bar])
		u.pos += bar + 1

		// "!name|" marks a registered but unset variable, no value follows
		if len(name) > 0 && name[0] == '!' {
			continue
		}
		if name == "" {
			return nil, u.errorf("empty session key")
		}

		v, err := u.value(0)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}

	return out, nil
}

func (u *unserializer) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", u.pos, fmt.Sprintf(format, args...))
}

func (u *unserializer) value(depth int) (any, error) {
	if depth > maxDepth {
		return nil, u.errorf("nesting deeper than %d", maxDepth)
	}
	if u.pos >= len(u.data) {
		return nil, u.errorf("unexpected end of data")
	}

	kind := u.data[u.pos]
	u.pos++

	switch kind {
	case 'N':
		return nil, u.expect(';')

	case 'b':
		n, err := u.intUntil(';')
		if err != nil {
			return nil, err
		}
		if n != 0 && n != 1 {
			return nil, u.errorf("invalid boolean %d", n)
		}
		return n == 1, nil

	case 'i':
		return u.intUntil(';')

	case 'd':
		if err := u.expect(':'); err != nil {
			return nil, err
		}
		raw, err := u.until(';')
		if err != nil {
			return nil, err
		}
		return parseFloat(raw, u)

	case 's':
		return u.str()

	case 'a':
		n, err := u.intUntil(':')
		if err != nil {
			return nil, err
		}
		return u.members(n, depth)

	case 'O':
		if _, err := u.str0(':'); err != nil {
			return nil, err
		}
		n, err := u.intBefore(':')
		if err != nil {
			return nil, err
		}
		return u.members(n, depth)

	case 'C':
		if _, err := u.str0(':'); err != nil {
			return nil, err
		}
		n, err := u.intBefore(':')
		if err != nil {
			return nil, err
		}
		if err := u.expect('{'); err != nil {
			return nil, err
		}
		payload, err := u.take(n)
		if err != nil {
			return nil, err
		}
		return string(payload), u.expect('}')

	case 'r', 'R':
		_, err := u.intUntil(';')
		return nil, err

	default:
		u.pos--
		return nil, u.errorf("unknown type %q", kind)
	}
}

// members reads "{key value ...}" with n pairs.
func (u *unserializer) members(n int64, depth int) (map[string]any, error) {
	if n < 0 || n > int64(len(u.data)) {
		return nil, u.errorf("invalid member count %d", n)
	}
	if err := u.expect('{'); err != nil {
		return nil, err
	}

	out := make(map[string]any, n)
	for i := int64(0); i < n; i++ {
		key, err := u.key()
		if err != nil {
			return nil, err
		}
		v, err := u.value(depth + 1)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}

	return out, u.expect('}')
}

func (u *unserializer) key() (string, error) {
	if u.pos >= len(u.data) {
		return "", u.errorf("unexpected end of data")
	}
	switch u.data[u.pos] {
	case 'i':
		u.pos++
		n, err := u.intUntil(';')
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case 's':
		u.pos++
		return u.str()
	default:
		return "", u.errorf("invalid array key type %q", u.data[u.pos])
	}
}

// str reads `:<len>:"<bytes>";` after the 's' marker.
func (u *unserializer) str() (string, error) {
	s, err := u.str0(';')
	return s, err
}

// str0 reads `:<len>:"<bytes>"` followed by term.
func (u *unserializer) str0(term byte) (string, error) {
	n, err := u.intUntil(':')
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", u.errorf("negative string length")
	}
	if err := u.expect('"'); err != nil {
		return "", err
	}
	b, err := u.take(n)
	if err != nil {
		return "", err
	}
	if err := u.expect('"'); err != nil {
		return "", err
	}
	return string(b), u.expect(term)
}

// intUntil reads ":<int>" terminated by term.
func (u *unserializer) intUntil(term byte) (int64, error) {
	if err := u.expect(':'); err != nil {
		return 0, err
	}
	return u.intBefore(term)
}

// intBefore reads "<int>" terminated by term.
func (u *unserializer) intBefore(term byte) (int64, error) {
	raw, err := u.until(term)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, u.errorf("invalid integer %q", raw)
	}
	return n, nil
}

// until returns the bytes up to term and consumes term.
func (u *unserializer) until(term byte) ([]byte, error) {
	i := bytes.IndexByte(u.data[u.pos:], term)
	if i < 0 {
		return nil, u.errorf("missing %q", term)
	}
	raw := u.data[u.pos : u.pos+i]
	u.pos += i + 1
	return raw, nil
}

func (u *unserializer) take(n int64) ([]byte, error) {
	if n < 0 || n > int64(len(u.data)-u.pos) {
		return nil, u.errorf("length %d exceeds remaining data", n)
	}
	b := u.data[u.pos : u.pos+int(n)]
	u.pos += int(n)
	return b, nil
}

func (u *unserializer) expect(c byte) error {
	if u.pos >= len(u.data) || u.data[u.pos] != c {
		return u.errorf("expected %q", c)
	}
	u.pos++
	return nil
}

func parseFloat(raw []byte, u *unserializer) (float64, error) {
	switch string(raw) {
	case "INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NAN":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, u.errorf("invalid float %q", raw)
	}
	return f, nil
}
