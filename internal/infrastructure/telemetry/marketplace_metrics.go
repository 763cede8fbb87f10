// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MarketplaceMetrics provides business metrics for the agent marketplace.
// It tracks agent invocations, access denials, settlement activity, and
// event stream fan-out.
type MarketplaceMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	invocationTotal       *Counter
	accessDeniedTotal     *Counter
	settlementTotal       *Counter
	settlementAmountTotal *Counter
	eventPublishedTotal   *Counter

	// Histogram metrics
	inferenceDuration *Histogram

	// Gauge metrics (point-in-time values)
	streamSubscribers *Gauge
}

// MarketplaceMetricsConfig holds configuration for marketplace metrics.
type MarketplaceMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewMarketplaceMetrics creates a new MarketplaceMetrics instance.
func NewMarketplaceMetrics(cfg MarketplaceMetricsConfig) (*MarketplaceMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mm := &MarketplaceMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error

	mm.invocationTotal, err = NewCounter(
		cfg.Meter,
		"agentmarket_invocation_total",
		"Total number of agent invocations authorized and executed",
		"{invocations}",
	)
	if err != nil {
		return nil, err
	}

	mm.accessDeniedTotal, err = NewCounter(
		cfg.Meter,
		"agentmarket_access_denied_total",
		"Total number of denied access checks",
		"{denials}",
	)
	if err != nil {
		return nil, err
	}

	mm.settlementTotal, err = NewCounter(
		cfg.Meter,
		"agentmarket_settlement_total",
		"Total number of settlements reaching a terminal status",
		"{settlements}",
	)
	if err != nil {
		return nil, err
	}

	mm.settlementAmountTotal, err = NewCounter(
		cfg.Meter,
		"agentmarket_settlement_amount_total",
		"Total settled amount in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	mm.eventPublishedTotal, err = NewCounter(
		cfg.Meter,
		"agentmarket_event_published_total",
		"Total number of events published to the stream",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	mm.inferenceDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "agentmarket_inference_duration_seconds",
		Description: "Duration of model inference calls",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	mm.streamSubscribers, err = NewGauge(
		cfg.Meter,
		"agentmarket_stream_subscribers",
		"Current number of active stream subscribers",
		"{subscribers}",
	)
	if err != nil {
		return nil, err
	}

	return mm, nil
}

// RecordInvocation records a completed agent invocation.
func (mm *MarketplaceMetrics) RecordInvocation(ctx context.Context, agentID uuid.UUID, tierCode string, duration time.Duration) {
	mm.invocationTotal.Inc(ctx,
		AttrAgentID.String(agentID.String()),
		AttrTierCode.String(tierCode),
	)
	mm.inferenceDuration.RecordDuration(ctx, duration,
		AttrAgentID.String(agentID.String()),
	)
}

// RecordAccessDenied records a denied access check with its deny code.
func (mm *MarketplaceMetrics) RecordAccessDenied(ctx context.Context, agentID uuid.UUID, denyCode string) {
	mm.accessDeniedTotal.Inc(ctx,
		AttrAgentID.String(agentID.String()),
		AttrDenyCode.String(denyCode),
	)
}

// RecordSettlement records a settlement reaching a terminal status.
// Amount should be the total charged amount. It is converted to cents
// for the monotonic amount counter; only successful settlements add to it.
func (mm *MarketplaceMetrics) RecordSettlement(ctx context.Context, status string, amount decimal.Decimal) {
	mm.settlementTotal.Inc(ctx,
		AttrSettlementStatus.String(status),
	)
	if status == "SUCCESS" {
		amountCents := amount.Mul(decimal.NewFromInt(100)).IntPart()
		mm.settlementAmountTotal.Add(ctx, amountCents,
			AttrSettlementStatus.String(status),
		)
	}
}

// RecordEventPublished records an event appended to a stream topic.
func (mm *MarketplaceMetrics) RecordEventPublished(ctx context.Context, topic string) {
	mm.eventPublishedTotal.Inc(ctx,
		AttrTopic.String(topic),
	)
}

// RecordStreamSubscribers records the current number of active subscribers.
func (mm *MarketplaceMetrics) RecordStreamSubscribers(ctx context.Context, count int64) {
	mm.streamSubscribers.Record(ctx, count)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewMarketplaceMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
