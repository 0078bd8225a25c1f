package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	authorizations   metric.Int64Counter
	tokensBurned     metric.Int64Counter
	paidDuplicates   metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "mlgledger"
	}
	meter := provider.Meter(name)

	authorizations, err := meter.Int64Counter("mlg_gate_authorizations_total",
		metric.WithDescription("Gated action authorizations by outcome."))
	if err != nil {
		return nil, err
	}
	tokensBurned, err := meter.Int64Counter("mlg_gate_tokens_burned_total",
		metric.WithDescription("Token base units burned by paid authorizations."))
	if err != nil {
		return nil, err
	}
	paidDuplicates, err := meter.Int64Counter("mlg_gate_paid_duplicates_total",
		metric.WithDescription("Burns that executed for a tuple already recorded by another request."))
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("mlg_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("mlg_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		authorizations:   authorizations,
		tokensBurned:     tokensBurned,
		paidDuplicates:   paidDuplicates,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordAuthorization counts one finished authorization attempt. Outcome is
// "granted" or the rejection reason.
func (m *Metrics) RecordAuthorization(ctx context.Context, actionKind, outcome, paymentMode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("action_kind", strings.TrimSpace(actionKind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
		attribute.String("payment_mode", strings.TrimSpace(paymentMode)),
	)
	m.authorizations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTokensBurned adds burned base units.
func (m *Metrics) RecordTokensBurned(ctx context.Context, actionKind string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("action_kind", strings.TrimSpace(actionKind)))
	m.tokensBurned.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordPaidDuplicate counts a burn that lost the ledger race.
func (m *Metrics) RecordPaidDuplicate(ctx context.Context, actionKind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action_kind", strings.TrimSpace(actionKind)))
	m.paidDuplicates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Principals and targets are unbounded and never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"action_kind":  {},
	"outcome":      {},
	"payment_mode": {},
	"endpoint":     {},
	"status_code":  {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
