package cleanup

import (
	"math"

	"github.com/aatumaykin/botsweep/internal/session"
)

// Disposition is the decision taken for one decoded session.
type Disposition int

const (
	// Active sessions are kept and their agent is tallied.
	Active Disposition = iota
	// DeleteBot sessions belong to crawlers and are removed regardless of age.
	DeleteBot
	// DeleteInactive sessions are human but older than the lifetime.
	DeleteInactive
	// MalformedNoUserAgent sessions lack the validator user agent. They are
	// not a recognised session shape and are never deleted.
	MalformedNoUserAgent
)

func (d Disposition) String() string {
	switch d {
	case Active:
		return "active"
	case DeleteBot:
		return "delete_bot"
	case DeleteInactive:
		return "delete_inactive"
	case MalformedNoUserAgent:
		return "malformed_no_user_agent"
	default:
		return "unknown"
	}
}

// Classifier decides whether a user agent belongs to a bot.
type Classifier interface {
	IsBot(userAgent string) bool
}

// Policy maps a decoded session to a Disposition.
type Policy struct {
	Classifier Classifier
}

// Classify returns the disposition of s together with its user agent.
// Age is now - createdAt, compared strictly against lifetimeSeconds;
// negative ages are not special-cased.
func (p Policy) Classify(s session.Decoded, now, createdAt, lifetimeSeconds int64) (Disposition, string) {
	agent, ok := s.UserAgent()
	if !ok {
		return MalformedNoUserAgent, ""
	}
	if p.Classifier != nil && p.Classifier.IsBot(agent) {
		return DeleteBot, agent
	}
	if olderThan(now, createdAt, lifetimeSeconds) {
		return DeleteInactive, agent
	}
	return Active, agent
}

// olderThan reports now - createdAt > lifetime without overflowing int64.
func olderThan(now, createdAt, lifetime int64) bool {
	switch {
	case createdAt < 0 && now > math.MaxInt64+createdAt:
		return true
	case createdAt > 0 && now < math.MinInt64+createdAt:
		return false
	}
	return now-createdAt > lifetime
}
