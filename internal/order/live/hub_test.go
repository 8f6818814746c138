package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smallbiznis/paysync/internal/order/domain"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubOrders struct {
	order *domain.Order
}

func (s stubOrders) Apply(context.Context, string, string, string) (*domain.Order, error) {
	return nil, nil
}

func (s stubOrders) ApplyConfirmed(context.Context, string, string, string) (*domain.Order, error) {
	return nil, nil
}

func (s stubOrders) Get(_ context.Context, ref string) (*domain.Order, error) {
	if s.order == nil || s.order.ProviderOrderRef != ref {
		return nil, domain.ErrOrderNotFound
	}
	return s.order, nil
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func TestHubDeliversOnlyToMatchingOrder(t *testing.T) {
	hub := startHub(t)

	abc, ok := hub.subscribe("order_abc")
	require.True(t, ok)
	other, ok := hub.subscribe("order_other")
	require.True(t, ok)

	hub.Publish(domain.StatusUpdate{OrderRef: "order_abc", Status: domain.StatusPaid})

	select {
	case msg := <-abc.send:
		var got domain.StatusUpdate
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, domain.StatusPaid, got.Status)
	case <-time.After(time.Second):
		t.Fatalf("expected update for order_abc")
	}

	select {
	case msg := <-other.send:
		t.Fatalf("unexpected update for order_other: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c, ok := hub.subscribe("order_abc")
	require.True(t, ok)
	cancel()

	select {
	case _, open := <-c.send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatalf("expected send channel to close")
	}

	_, ok = hub.subscribe("order_abc")
	assert.False(t, ok)
	hub.Publish(domain.StatusUpdate{OrderRef: "order_abc"})
}

func TestHandlerStreamsSnapshotThenUpdates(t *testing.T) {
	hub := startHub(t)
	order := &domain.Order{
		ProviderOrderRef: "order_abc",
		OrderNumber:      "ORD-1",
		Status:           domain.StatusPending,
		PaymentStatus:    domain.PaymentStatusPending,
	}
	handler := NewHandler(hub, stubOrders{order: order}, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(r.URL.Path, "/orders/")
		if err := handler.Serve(w, r, ref); err != nil {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/orders/order_abc"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot domain.StatusUpdate
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, domain.StatusPending, snapshot.Status)
	assert.Equal(t, "ORD-1", snapshot.OrderNumber)

	// The subscription is registered before the snapshot is written.
	hub.Publish(domain.StatusUpdate{OrderRef: "order_abc", Status: domain.StatusPaid, PaymentStatus: domain.PaymentStatusCompleted})

	var upd domain.StatusUpdate
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&upd))
	assert.Equal(t, domain.StatusPaid, upd.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, upd.PaymentStatus)
}

func TestHandlerUnknownOrder(t *testing.T) {
	hub := startHub(t)
	handler := NewHandler(hub, stubOrders{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/orders/order_missing/live", nil)
	rec := httptest.NewRecorder()
	err := handler.Serve(rec, req, "order_missing")

	kind, ok := paymentdomain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, paymentdomain.KindNotFound, kind)
}
