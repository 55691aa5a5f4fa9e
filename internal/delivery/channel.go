// Package delivery sends one reminder over one channel. Channels never retry;
// the caller logs each attempt as it comes back.
package delivery

import (
	"context"
	"strings"

	"plantcare/internal/models"
)

type Message struct {
	Title   string
	Body    string
	Urgent  bool
	PlantID string
}

// Channel delivers with the credentials found in the user's settings.
// Implementations must be safe for concurrent use.
type Channel interface {
	Name() models.Channel
	Deliver(ctx context.Context, settings models.NotificationSettings, msg Message) error
}

// Eligible applies the per-channel toggle and credential rules.
func Eligible(ch models.Channel, settings models.NotificationSettings) bool {
	switch ch {
	case models.ChannelPush:
		return settings.PushEligible()
	case models.ChannelEmail:
		return settings.EmailEligible()
	default:
		return false
	}
}

// redact strips secrets that shoutrrr may echo back inside service URLs.
func redact(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			msg = strings.ReplaceAll(msg, s, "***")
		}
	}
	return msg
}
