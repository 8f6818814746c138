package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/paysync/internal/clock"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	writer     *Writer
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, pub Publisher) fixture {
	t.Helper()
	return newFixtureWithPoll(t, pub, time.Second)
}

func newFixtureWithPoll(t *testing.T, pub Publisher, poll time.Duration) fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	var cfg config.Config
	cfg.Outbox.PollInterval = poll
	cfg.Outbox.BatchSize = 10

	return fixture{
		db:     db,
		clock:  fake,
		writer: NewWriter(WriterParams{GenID: node, Clock: fake}),
		dispatcher: NewDispatcher(DispatcherParams{
			DB:        db,
			Log:       zap.NewNop(),
			Clock:     fake,
			Cfg:       cfg,
			Publisher: pub,
		}),
	}
}

func loadMessages(t *testing.T, db *gorm.DB) []Message {
	t.Helper()
	var rows []Message
	if err := db.Order("id").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	return rows
}

func TestWriterRollsBackWithTransaction(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	errAbort := errors.New("abort")
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := f.writer.Enqueue(ctx, tx, "order.payment_updated", map[string]string{"order_ref": "order_abc"}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	assert.Equal(t, int64(0), testutil.CountRows(t, f.db, "order_outbox"))

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.writer.Enqueue(ctx, tx, "order.payment_updated", map[string]string{"order_ref": "order_abc"})
	})
	require.NoError(t, err)

	rows := loadMessages(t, f.db)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusPending, rows[0].Status)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rows[0].Payload, &body))
	assert.Equal(t, "order_abc", body["order_ref"])
}

func TestDispatchOncePublishesAndMarksSent(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	f := newFixture(t, pub)
	ctx := context.Background()

	require.NoError(t, f.writer.Enqueue(ctx, f.db, "order.payment_updated", map[string]string{"order_ref": "order_abc"}))

	pub.EXPECT().
		Publish(gomock.Any(), "order.payment_updated", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, payload []byte) error {
			assert.JSONEq(t, `{"order_ref":"order_abc"}`, string(payload))
			return nil
		})

	sent, err := f.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	rows := loadMessages(t, f.db)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusSent, rows[0].Status)

	// Nothing left to claim.
	sent, err = f.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestDispatchOnceBacksOffOnPublishFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	f := newFixture(t, pub)
	ctx := context.Background()

	require.NoError(t, f.writer.Enqueue(ctx, f.db, "order.payment_updated", map[string]string{"order_ref": "order_abc"}))

	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("amqp: channel closed"))

	sent, err := f.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	rows := loadMessages(t, f.db)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusPending, rows[0].Status)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.True(t, rows[0].NextRetry.After(f.clock.Now()))

	// Still backing off: no publish expected.
	sent, err = f.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	f.clock.Advance(retryDelay(1))
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	sent, err = f.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestDispatchReclaimsExpiredLease(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	f := newFixture(t, pub)
	ctx := context.Background()

	require.NoError(t, f.writer.Enqueue(ctx, f.db, "order.payment_updated", map[string]string{}))
	claimed, err := f.dispatcher.claim(ctx)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// A second claim inside the lease sees nothing.
	again, err := f.dispatcher.claim(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	f.clock.Advance(claimLease)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	sent, err := f.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestRetryDelayIsCapped(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryDelay(1))
	assert.Equal(t, 8*time.Second, retryDelay(3))
	assert.Equal(t, time.Minute, retryDelay(6))
	assert.Equal(t, time.Minute, retryDelay(50))
	assert.Equal(t, time.Second, retryDelay(-1))
}

func TestLifecycleStopHaltsDispatcher(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	f := newFixtureWithPoll(t, pub, 10*time.Millisecond)
	ctx := context.Background()

	published := make(chan struct{}, 1)
	pub.EXPECT().
		Publish(gomock.Any(), "order.payment_updated", gomock.Any()).
		DoAndReturn(func(context.Context, string, []byte) error {
			published <- struct{}{}
			return nil
		}).
		Times(1)

	require.NoError(t, f.writer.Enqueue(ctx, f.db, "order.payment_updated", map[string]string{"order_ref": "order_a"}))

	lc := fxtest.NewLifecycle(t)
	startDispatcher(lc, f.dispatcher)
	lc.RequireStart()

	select {
	case <-published:
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatcher did not publish after start")
	}

	lc.RequireStop()

	require.NoError(t, f.writer.Enqueue(ctx, f.db, "order.payment_updated", map[string]string{"order_ref": "order_b"}))
	time.Sleep(100 * time.Millisecond)

	rows := loadMessages(t, f.db)
	require.Len(t, rows, 2)
	assert.Equal(t, StatusSent, rows[0].Status)
	assert.Equal(t, StatusPending, rows[1].Status)
}

func TestStartDispatcherSkipsWithoutPublisher(t *testing.T) {
	f := newFixture(t, nil)

	lc := fxtest.NewLifecycle(t)
	startDispatcher(lc, f.dispatcher)
	lc.RequireStart()
	lc.RequireStop()
}
