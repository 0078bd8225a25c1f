package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// Identifiers that are unbounded or user supplied stay out of span attributes.
var forbiddenAttributeKeys = map[attribute.Key]struct{}{
	"principal":     {},
	"target":        {},
	"authorization": {},
	"api_key":       {},
}

// ExtractContext pulls upstream trace context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes that could leak identities.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, forbidden := forbiddenAttributeKeys[attr.Key]; forbidden {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError reduces err to the first error in its chain, which for this
// codebase is the exported sentinel, so wrapped driver messages with bound
// values never reach the exporter.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		if errs := e.Unwrap(); len(errs) > 0 {
			return SafeError(errs[0])
		}
	case interface{ Unwrap() error }:
		if inner := e.Unwrap(); inner != nil {
			return SafeError(inner)
		}
	}
	return errors.New(err.Error())
}
