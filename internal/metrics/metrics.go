// Package metrics wires OpenTelemetry counters for the OTP flow.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const meterName = "collegenetwork/otp"

// NewMeterProvider exports via OTLP gRPC when endpoint is set; otherwise the provider has no reader.
// endpoint may be host:port or a URL; only host:port is used.
func NewMeterProvider(ctx context.Context, endpoint, serviceName string, insecure bool) (*sdkmetric.MeterProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(u.Host)}
	if insecure || u.Scheme != "https" {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
}

// OTPMetrics: counters for the OTP lifecycle. A nil *OTPMetrics records nothing.
type OTPMetrics struct {
	sent           metric.Int64Counter
	verified       metric.Int64Counter
	verifyFailed   metric.Int64Counter
	deliveryFailed metric.Int64Counter
	superseded     metric.Int64Counter
}

func NewOTPMetrics(mp metric.MeterProvider) (*OTPMetrics, error) {
	m := mp.Meter(meterName)
	var (
		out OTPMetrics
		err error
	)
	if out.sent, err = m.Int64Counter("otp.sent", metric.WithDescription("OTP codes issued")); err != nil {
		return nil, err
	}
	if out.verified, err = m.Int64Counter("otp.verified", metric.WithDescription("OTP codes verified")); err != nil {
		return nil, err
	}
	if out.verifyFailed, err = m.Int64Counter("otp.verify_failed", metric.WithDescription("failed OTP verifications by reason")); err != nil {
		return nil, err
	}
	if out.deliveryFailed, err = m.Int64Counter("otp.delivery_failed", metric.WithDescription("OTP deliveries that failed by channel")); err != nil {
		return nil, err
	}
	if out.superseded, err = m.Int64Counter("otp.superseded", metric.WithDescription("active challenges replaced by a new code")); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *OTPMetrics) Sent(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func (m *OTPMetrics) Verified(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func (m *OTPMetrics) VerifyFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.verifyFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *OTPMetrics) DeliveryFailed(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.deliveryFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func (m *OTPMetrics) Superseded(ctx context.Context) {
	if m == nil {
		return
	}
	m.superseded.Add(ctx, 1)
}
