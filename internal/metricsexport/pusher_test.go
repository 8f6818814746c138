package metricsexport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paysync_test_webhooks_total",
		Help: "test",
	}, []string{"provider"})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "paysync_test_latency", Help: "test"})
	reg.MustRegister(counter, hist)
	counter.WithLabelValues("razorpay").Add(3)
	hist.Observe(0.2)
	return reg
}

func TestRemoteWritePusherSendsCounters(t *testing.T) {
	var got prompb.WriteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		compressed, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, compressed)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(raw, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "token")
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))

	require.Len(t, got.Timeseries, 1)
	series := got.Timeseries[0]
	assert.Equal(t, 3.0, series.Samples[0].Value)
	labels := map[string]string{}
	for _, l := range series.Labels {
		labels[l.Name] = l.Value
	}
	assert.Equal(t, map[string]string{
		"__name__": "paysync_test_webhooks_total",
		"provider": "razorpay",
	}, labels)
}

func TestRemoteWritePusherReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))
	require.Error(t, err)
}

func TestPushgatewayPusher(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var cfg config.Config
	cfg.AppName = "PaySync Worker"
	cfg.Environment = "test"
	cfg.Export = config.MetricsExportConfig{Exporter: exporterPushgateway, Endpoint: srv.URL}

	pusher := NewPusher(cfg, zaptest.NewLogger(t))
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, "/metrics/job/paysync-worker/environment/test", path)
}

func TestNewPusherSelection(t *testing.T) {
	var cfg config.Config
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))

	cfg.Export = config.MetricsExportConfig{Exporter: exporterRemoteWrite}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))

	cfg.Export.Endpoint = "http://prom.local/api/v1/write"
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.Export.Exporter = exporterPushgateway
	cfg.AppName = "paysync"
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.Export.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))
}

func TestRefreshPendingCountsUnprocessedWebhooks(t *testing.T) {
	db := testutil.OpenDB(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, processed := range []bool{false, false, true} {
		var processedAt any
		if processed {
			processedAt = now
		}
		require.NoError(t, db.Exec(
			`INSERT INTO payment_events (id, provider, source, event_id, event_type, payload, received_at, processed_at)
			 VALUES (?, 'razorpay', 'provider_webhook', ?, 'payment.captured', '{}', ?, ?)`,
			i+1, []string{"evt_1", "evt_2", "evt_3"}[i], now, processedAt,
		).Error)
	}

	refreshPending(context.Background(), db)

	var metric dto.Metric
	require.NoError(t, pendingEvents.Write(&metric))
	assert.Equal(t, 2.0, metric.GetGauge().GetValue())
}

type mockPusher struct {
	mock.Mock
}

func (m *mockPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	args := m.Called(ctx, gatherer)
	return args.Error(0)
}

func TestExportOnceRefreshesGaugeBeforePush(t *testing.T) {
	db := testutil.OpenDB(t)
	require.NoError(t, db.Exec(
		`INSERT INTO payment_events (id, provider, source, event_id, event_type, payload, received_at)
		 VALUES (1, 'razorpay', 'provider_webhook', 'evt_9', 'payment.captured', '{}', ?)`,
		time.Now().UTC(),
	).Error)

	pusher := &mockPusher{}
	pusher.On("Push", mock.Anything, prometheus.DefaultGatherer).
		Run(func(mock.Arguments) {
			var metric dto.Metric
			require.NoError(t, pendingEvents.Write(&metric))
			assert.Equal(t, 1.0, metric.GetGauge().GetValue())
		}).
		Return(errors.New("gateway down")).Once()

	exportOnce(context.Background(), pusher, db, zaptest.NewLogger(t))
	pusher.AssertExpectations(t)
}
