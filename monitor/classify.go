package monitor

import (
	"errors"

	"github.com/atlist/relay/youtubeapi"
)

// verdict is the classifier's decision for a mid-poll failure.
type verdict int

const (
	// verdictTransient: retry after the error interval, state unchanged.
	verdictTransient verdict = iota
	// verdictReauth: attempt a credential refresh before retrying.
	verdictReauth
	// verdictTerminal: stop the session, no reschedule.
	verdictTerminal
)

func (v verdict) String() string {
	switch v {
	case verdictReauth:
		return "reauth"
	case verdictTerminal:
		return "terminal"
	default:
		return "transient"
	}
}

// classify maps a poll failure to a verdict. Unknown failures are transient:
// the loop retries indefinitely until stopped or terminally failed.
func classify(err error) verdict {
	switch {
	case errors.Is(err, youtubeapi.ErrChatDisabled), errors.Is(err, youtubeapi.ErrChatEnded):
		return verdictTerminal
	case errors.Is(err, youtubeapi.ErrAuthExpired):
		return verdictReauth
	default:
		return verdictTransient
	}
}
