package chat

import (
	"math"
	"strings"
	"time"
)

const (
	// MaxAutoResponseDelay bounds AutoResponse.DelaySeconds.
	MaxAutoResponseDelay = 60
	// MaxAutoResponseMessage bounds the auto-reply text length in characters.
	MaxAutoResponseMessage = 1000
)

// AutoResponse configures the reply sent to a visitor when no staff member is
// online. It is stored as a singleton.
type AutoResponse struct {
	Enabled      bool    `json:"enabled"`
	Message      string  `json:"message" validate:"required_if=Enabled true,max=1000"`
	DelaySeconds float64 `json:"delaySeconds"`
}

// Normalize trims the message and clamps the delay into [0, 60] seconds.
func (a AutoResponse) Normalize() AutoResponse {
	a.Message = strings.TrimSpace(a.Message)
	switch {
	case a.DelaySeconds < 0 || math.IsNaN(a.DelaySeconds):
		a.DelaySeconds = 0
	case a.DelaySeconds > MaxAutoResponseDelay:
		a.DelaySeconds = MaxAutoResponseDelay
	}
	return a
}

// Delay converts DelaySeconds into a duration.
func (a AutoResponse) Delay() time.Duration {
	return time.Duration(a.Normalize().DelaySeconds * float64(time.Second))
}
