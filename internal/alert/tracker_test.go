package alert

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/paysync/internal/clock"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/providers/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTracker(t *testing.T, notifier slack.Provider, fake *clock.FakeClock) *Tracker {
	t.Helper()
	var cfg config.Config
	cfg.Alert.FailureThreshold = 3
	cfg.Alert.FailureWindow = time.Minute
	cfg.Alert.SlackChannel = "#payments-alerts"

	return NewTracker(Params{
		Cfg:      cfg,
		Log:      zap.NewNop(),
		Counter:  NewMemoryCounter(fake),
		Notifier: notifier,
	})
}

func TestTrackerAlertsOnceAtThreshold(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := slack.NewMockProvider(ctrl)
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	tracker := newTracker(t, notifier, fake)

	notifier.EXPECT().
		PostMessage(gomock.Any(), "#payments-alerts", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg string) error {
			assert.True(t, strings.Contains(msg, "razorpay"))
			assert.True(t, strings.Contains(msg, "provider_webhook"))
			return nil
		}).
		Times(1)

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(context.Background(), "razorpay", "provider_webhook")
	}
}

func TestTrackerWindowResets(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := slack.NewMockProvider(ctrl)
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	tracker := newTracker(t, notifier, fake)

	tracker.RecordFailure(context.Background(), "razorpay", "provider_confirm")
	tracker.RecordFailure(context.Background(), "razorpay", "provider_confirm")
	fake.Advance(2 * time.Minute)

	// Window expired: two more failures stay under the threshold.
	tracker.RecordFailure(context.Background(), "razorpay", "provider_confirm")
	tracker.RecordFailure(context.Background(), "razorpay", "provider_confirm")

	notifier.EXPECT().PostMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	tracker.RecordFailure(context.Background(), "razorpay", "provider_confirm")
}

func TestTrackerKeysBySource(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := slack.NewMockProvider(ctrl)
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	tracker := newTracker(t, notifier, fake)

	for i := 0; i < 2; i++ {
		tracker.RecordFailure(context.Background(), "razorpay", "provider_webhook")
		tracker.RecordFailure(context.Background(), "razorpay", "provider_confirm")
	}
}

func TestMemoryCounter(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	counter := NewMemoryCounter(fake)

	for want := int64(1); want <= 3; want++ {
		got, err := counter.Incr(context.Background(), "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	fake.Advance(time.Minute)
	got, err := counter.Incr(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestNilTrackerIsNoop(t *testing.T) {
	var tracker *Tracker
	tracker.RecordFailure(context.Background(), "razorpay", "provider_webhook")
}
