package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strconv"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"plantcare/internal/models"
)

const DefaultTimeout = 10 * time.Second

// send builds a one-off sender for url and returns the first error reported.
func send(ctx context.Context, serviceURL string, timeout time.Duration, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sender, err := shoutrrr.CreateSender(serviceURL)
	if err != nil {
		return fmt.Errorf("invalid service url: %w", err)
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	params := stypes.Params{}
	if msg.Title != "" {
		params.SetTitle(msg.Title)
	}
	for _, e := range sender.Send(msg.Body, &params) {
		if e != nil {
			return e
		}
	}
	return nil
}

// PushoverChannel delivers push reminders through Pushover. A user needs both
// their user key and an application token.
type PushoverChannel struct {
	timeout time.Duration
}

func NewPushoverChannel(timeout time.Duration) *PushoverChannel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PushoverChannel{timeout: timeout}
}

func (c *PushoverChannel) Name() models.Channel { return models.ChannelPush }

func (c *PushoverChannel) Deliver(ctx context.Context, settings models.NotificationSettings, msg Message) error {
	if !settings.PushEligible() {
		return errors.New("push channel is not configured")
	}
	err := send(ctx, PushoverURL(settings, msg.Urgent), c.timeout, msg)
	if err != nil {
		return errors.New(redact(err.Error(), settings.PushoverAPIToken, settings.PushoverUserKey))
	}
	return nil
}

// PushoverURL builds pushover://shoutrrr:<token>@<userKey>/. Urgent reminders
// go out with high priority.
func PushoverURL(settings models.NotificationSettings, urgent bool) string {
	q := url.Values{}
	if urgent {
		q.Set("priority", "1")
	}
	u := url.URL{
		Scheme:   "pushover",
		User:     url.UserPassword("shoutrrr", settings.PushoverAPIToken),
		Host:     settings.PushoverUserKey,
		Path:     "/",
		RawQuery: q.Encode(),
	}
	return u.String()
}

type SMTPServer struct {
	Host string
	Port int
	From string
}

// EmailChannel sends through an SMTP relay using the user's own login.
type EmailChannel struct {
	server  SMTPServer
	timeout time.Duration
}

func NewEmailChannel(server SMTPServer, timeout time.Duration) *EmailChannel {
	if server.Port == 0 {
		server.Port = 587
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &EmailChannel{server: server, timeout: timeout}
}

func (c *EmailChannel) Name() models.Channel { return models.ChannelEmail }

func (c *EmailChannel) Deliver(ctx context.Context, settings models.NotificationSettings, msg Message) error {
	if !settings.EmailEligible() {
		return errors.New("email channel is not configured")
	}
	if c.server.Host == "" {
		return errors.New("smtp host is not configured")
	}
	err := send(ctx, SMTPURL(c.server, settings, msg.Title), c.timeout, msg)
	if err != nil {
		return errors.New(redact(err.Error(), settings.SMTPPassword))
	}
	return nil
}

func SMTPURL(server SMTPServer, settings models.NotificationSettings, subject string) string {
	from := server.From
	if from == "" {
		from = settings.SMTPUsername
	}
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", settings.EmailRecipient())
	q.Set("auth", "Plain")
	q.Set("encryption", "Auto")
	if subject != "" {
		q.Set("subject", subject)
	}
	u := url.URL{
		Scheme:   "smtp",
		User:     url.UserPassword(settings.SMTPUsername, settings.SMTPPassword),
		Host:     server.Host + ":" + strconv.Itoa(server.Port),
		Path:     "/",
		RawQuery: q.Encode(),
	}
	return u.String()
}
