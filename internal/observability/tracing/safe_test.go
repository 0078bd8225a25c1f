package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsIdentities(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("principal", "wallet-1"),
		attribute.String("http.route", "/authorize"),
		attribute.String("target", "clip-a"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsSentinel(t *testing.T) {
	sentinel := errors.New("ledger_store_unavailable")
	driver := errors.New(`insert into ledger_entries values ('wallet-1')`)

	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(fmt.Errorf("%w: %w", sentinel, driver)), "ledger_store_unavailable")
	assert.EqualError(t, SafeError(fmt.Errorf("append: %w", sentinel)), "ledger_store_unavailable")
	assert.EqualError(t, SafeError(sentinel), "ledger_store_unavailable")
}
