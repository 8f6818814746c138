package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/paysync/internal/config"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	"github.com/smallbiznis/paysync/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyFailures = "paysync:sigfail:%s:%s"

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Counter    FailureCounter
	Notifier   slack.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Tracker counts signature verification failures and raises one alert each
// time a provider/source pair reaches the threshold within the window.
type Tracker struct {
	log        *zap.Logger
	counter    FailureCounter
	notifier   slack.Provider
	channel    string
	threshold  int64
	window     time.Duration
	obsMetrics *obsmetrics.Metrics
}

func NewTracker(p Params) *Tracker {
	threshold := p.Cfg.Alert.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	window := p.Cfg.Alert.FailureWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Tracker{
		log:        p.Log.Named("alert"),
		counter:    p.Counter,
		notifier:   p.Notifier,
		channel:    p.Cfg.Alert.SlackChannel,
		threshold:  threshold,
		window:     window,
		obsMetrics: p.ObsMetrics,
	}
}

// RecordFailure never returns an error: alerting is best effort and must
// not change the response of the request that failed verification.
func (t *Tracker) RecordFailure(ctx context.Context, provider, source string) {
	if t == nil {
		return
	}
	t.obsMetrics.RecordSignatureFailure(ctx, provider, source)

	key := fmt.Sprintf(keyFailures, strings.ToLower(provider), source)
	count, err := t.counter.Incr(ctx, key, t.window)
	if err != nil {
		t.log.Warn("signature failure counter unavailable", zap.Error(err))
		return
	}
	if count != t.threshold {
		return
	}

	msg := fmt.Sprintf(
		":rotating_light: %d %s signature verification failures for provider %q within %s",
		count, source, provider, t.window,
	)
	t.log.Warn("signature failure threshold reached",
		zap.String("provider", provider),
		zap.String("source", source),
		zap.Int64("count", count),
	)
	if err := t.notifier.PostMessage(ctx, t.channel, msg); err != nil {
		t.log.Warn("post signature failure alert", zap.Error(err))
	}
}
