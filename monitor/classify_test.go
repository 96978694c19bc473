package monitor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/atlist/relay/youtubeapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want verdict
	}{
		{"chat disabled", youtubeapi.ErrChatDisabled, verdictTerminal},
		{"chat ended", youtubeapi.ErrChatEnded, verdictTerminal},
		{"wrapped terminal", fmt.Errorf("fetch: %w", youtubeapi.ErrChatDisabled), verdictTerminal},
		{"auth expired", youtubeapi.ErrAuthExpired, verdictReauth},
		{"wrapped auth", fmt.Errorf("fetch: %w", youtubeapi.ErrAuthExpired), verdictReauth},
		{"network error", errors.New("connection reset by peer"), verdictTransient},
		{"not ready mid-poll", youtubeapi.ErrTargetNotReady, verdictTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestVerdictString(t *testing.T) {
	pairs := map[verdict]string{
		verdictTransient: "transient",
		verdictReauth:    "reauth",
		verdictTerminal:  "terminal",
	}
	for v, want := range pairs {
		if got := v.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", v, got, want)
		}
	}
}
