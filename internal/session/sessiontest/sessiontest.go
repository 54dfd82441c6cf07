// Package sessiontest builds encoded session payloads for tests.
package sessiontest

import (
	"encoding/base64"
	"fmt"

	"github.com/aatumaykin/botsweep/internal/session"
)

// Serialized returns the "php" handler encoding of a session whose
// validator data carries agent.
func Serialized(agent string) string {
	return fmt.Sprintf(`%s|a:2:{s:%d:"%s";s:%d:"%s";s:11:"remote_addr";s:9:"127.0.0.1";}customer_base|a:1:{s:2:"id";N;}`,
		session.ValidatorKey,
		len(session.UserAgentKey), session.UserAgentKey,
		len(agent), agent)
}

// Payload is Serialized(agent) base64-encoded, as stored in session_data.
func Payload(agent string) []byte {
	return []byte(base64.StdEncoding.EncodeToString([]byte(Serialized(agent))))
}

// NoAgentPayload encodes a well-formed session without validator data.
func NoAgentPayload() []byte {
	return []byte(base64.StdEncoding.EncodeToString([]byte(`customer_base|a:0:{}`)))
}

// Record builds a stored row for agent.
func Record(id string, expiresAt int64, agent string) session.Record {
	return session.Record{ID: id, ExpiresAt: expiresAt, Data: Payload(agent)}
}
