package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Sum[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum
			}
		}
	}
	return out
}

func TestOTPMetrics_Counters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m, err := NewOTPMetrics(mp)
	if err != nil {
		t.Fatalf("NewOTPMetrics: %v", err)
	}
	ctx := context.Background()
	m.Sent(ctx, "email")
	m.Sent(ctx, "email")
	m.Verified(ctx, "email")
	m.VerifyFailed(ctx, "invalid_code")
	m.DeliveryFailed(ctx, "sms")
	m.Superseded(ctx)

	got := collect(t, reader)
	wantTotals := map[string]int64{
		"otp.sent":            2,
		"otp.verified":        1,
		"otp.verify_failed":   1,
		"otp.delivery_failed": 1,
		"otp.superseded":      1,
	}
	for name, want := range wantTotals {
		sum, ok := got[name]
		if !ok {
			t.Errorf("metric %s not recorded", name)
			continue
		}
		var total int64
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
		if total != want {
			t.Errorf("%s = %d, want %d", name, total, want)
		}
	}

	dp := got["otp.verify_failed"].DataPoints[0]
	if v, ok := dp.Attributes.Value(attribute.Key("reason")); !ok || v.AsString() != "invalid_code" {
		t.Errorf("reason attribute = %v", v)
	}
}

func TestOTPMetrics_NilIsNoop(t *testing.T) {
	var m *OTPMetrics
	ctx := context.Background()
	m.Sent(ctx, "email")
	m.Verified(ctx, "email")
	m.VerifyFailed(ctx, "expired")
	m.DeliveryFailed(ctx, "sms")
	m.Superseded(ctx)
}

func TestNewMeterProvider_NoEndpoint(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), "", "college-network-otp", true)
	if err != nil {
		t.Fatalf("NewMeterProvider: %v", err)
	}
	if err := mp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNewMeterProvider_Endpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{"host port", "localhost:4317", false},
		{"url", "http://collector:4317", false},
		{"missing host", "http://", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp, err := NewMeterProvider(context.Background(), tt.endpoint, "svc", true)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if mp != nil {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				_ = mp.Shutdown(ctx)
			}
		})
	}
}
