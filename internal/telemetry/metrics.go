package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/invoicer"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	LoginsTotal          metric.Int64Counter
	RegistrationsTotal   metric.Int64Counter
	TokensIssuedTotal    metric.Int64Counter
	TokenRejectionsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance bound to the global meter provider.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(otel.GetMeterProvider().Meter(meterName))
	})
	return metrics
}

// NewMetrics creates the instruments on the given meter.
func NewMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}

	m.LoginsTotal, _ = meter.Int64Counter(
		"invoicer.auth.logins.total",
		metric.WithDescription("Total number of login attempts by result"),
		metric.WithUnit("{attempt}"),
	)

	m.RegistrationsTotal, _ = meter.Int64Counter(
		"invoicer.auth.registrations.total",
		metric.WithDescription("Total number of registration attempts by result"),
		metric.WithUnit("{attempt}"),
	)

	m.TokensIssuedTotal, _ = meter.Int64Counter(
		"invoicer.auth.tokens.issued.total",
		metric.WithDescription("Total number of access tokens issued"),
		metric.WithUnit("{token}"),
	)

	m.TokenRejectionsTotal, _ = meter.Int64Counter(
		"invoicer.auth.token.rejections.total",
		metric.WithDescription("Total number of access tokens rejected by reason"),
		metric.WithUnit("{token}"),
	)

	return m
}

// RecordLogin counts a login attempt. result is "success", "invalid_request" or "invalid_credentials".
func (m *Metrics) RecordLogin(ctx context.Context, result string) {
	m.LoginsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRegistration counts a registration attempt.
func (m *Metrics) RecordRegistration(ctx context.Context, result string) {
	m.RegistrationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordTokenIssued counts a newly minted access token.
func (m *Metrics) RecordTokenIssued(ctx context.Context) {
	m.TokensIssuedTotal.Add(ctx, 1)
}

// RecordTokenRejection counts a rejected access token.
func (m *Metrics) RecordTokenRejection(ctx context.Context, reason string) {
	m.TokenRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
