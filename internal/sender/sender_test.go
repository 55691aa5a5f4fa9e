package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantcare/internal/delivery"
	"plantcare/internal/models"
	"plantcare/internal/storage"
	"plantcare/internal/urgency"
)

type fakeChannel struct {
	name models.Channel
	err  error

	mu   sync.Mutex
	sent []delivery.Message
}

func (f *fakeChannel) Name() models.Channel { return f.name }
func (f *fakeChannel) Deliver(ctx context.Context, ns models.NotificationSettings, msg delivery.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type failingLog struct {
	*storage.MemoryStorage
	fail models.Channel
}

func (f *failingLog) Append(ctx context.Context, e *models.NotificationLogEntry) error {
	if e.Channel == f.fail {
		return errors.New("disk full")
	}
	return f.MemoryStorage.Append(ctx, e)
}

var (
	pushOnly = models.NotificationSettings{
		UserID: "u1", Enabled: true, PushoverUserKey: "uk", PushoverAPIToken: "tok",
	}
	both = models.NotificationSettings{
		UserID: "u1", Enabled: true, PushoverUserKey: "uk", PushoverAPIToken: "tok",
		EmailEnabled: true, SMTPUsername: "me@example.com", SMTPPassword: "pw",
	}
)

func newTestSender(mem *storage.MemoryStorage, log storage.DeliveryLog, channels ...delivery.Channel) *Sender {
	s := New(mem, log, channels, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC) }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("log-%d", n)
	}
	return s
}

func TestSend_PushEligibleOnlyWritesOneEntry(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	mem.PutSettings(pushOnly)
	push := &fakeChannel{name: models.ChannelPush}
	email := &fakeChannel{name: models.ChannelEmail}
	s := newTestSender(mem, mem, push, email)

	entries, err := s.SendTest(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ChannelPush, entries[0].Channel)
	assert.True(t, entries[0].Success)
	assert.Equal(t, 0, email.count())

	logged, err := mem.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, models.ChannelPush, logged[0].Channel)
}

func TestSend_PartialFailureIsIndependent(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	mem.PutSettings(both)
	push := &fakeChannel{name: models.ChannelPush}
	email := &fakeChannel{name: models.ChannelEmail, err: errors.New("535 authentication failed")}
	s := newTestSender(mem, mem, push, email)

	entries, err := s.SendTest(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byChannel := map[models.Channel]models.NotificationLogEntry{}
	for _, e := range entries {
		byChannel[e.Channel] = e
	}
	assert.True(t, byChannel[models.ChannelPush].Success)
	assert.False(t, byChannel[models.ChannelEmail].Success)
	assert.Equal(t, "535 authentication failed", byChannel[models.ChannelEmail].Error)

	// no retry of either channel
	assert.Equal(t, 1, push.count())
	assert.Equal(t, 1, email.count())

	logged, _ := mem.ListRecent(ctx, 10)
	assert.Len(t, logged, 2)
}

func TestSend_NothingEligible(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	push := &fakeChannel{name: models.ChannelPush}
	s := newTestSender(mem, mem, push)

	entries, err := s.SendTest(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, push.count())
}

func TestSend_LogFailureDoesNotStopOtherChannel(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	mem.PutSettings(both)
	push := &fakeChannel{name: models.ChannelPush}
	email := &fakeChannel{name: models.ChannelEmail}
	s := newTestSender(mem, &failingLog{MemoryStorage: mem, fail: models.ChannelPush}, push, email)

	entries, err := s.SendTest(ctx, "u1")
	require.Error(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 1, email.count())

	logged, _ := mem.ListRecent(ctx, 10)
	require.Len(t, logged, 1)
	assert.Equal(t, models.ChannelEmail, logged[0].Channel)
}

func TestSendForPlant_CarriesPlantAndUrgency(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	mem.PutSettings(pushOnly)
	push := &fakeChannel{name: models.ChannelPush}
	s := newTestSender(mem, mem, push)

	plant := models.Plant{ID: "p1", Name: "Ivy"}
	entries, err := s.SendForPlant(ctx, "u1", plant, urgency.State{Status: urgency.StatusOverdue, DaysUntil: -2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].PlantID)
	assert.Equal(t, "p1", *entries[0].PlantID)
	assert.Equal(t, "Ivy needs water", entries[0].Title)
	assert.Equal(t, "log-1", entries[0].ID)

	require.Equal(t, 1, push.count())
	assert.True(t, push.sent[0].Urgent)
}

type brokenSettings struct{}

func (brokenSettings) GetSettings(ctx context.Context, userID string) (models.NotificationSettings, error) {
	return models.NotificationSettings{}, errors.New("timeout")
}

func TestSend_SettingsFailureSendsNothing(t *testing.T) {
	mem := storage.NewMemoryStorage()
	push := &fakeChannel{name: models.ChannelPush}
	s := New(brokenSettings{}, mem, []delivery.Channel{push}, nil, nil)

	_, err := s.SendTest(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, 0, push.count())
}
