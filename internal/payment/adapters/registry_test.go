package adapters

import (
	"testing"

	"github.com/smallbiznis/paysync/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesCaseInsensitively(t *testing.T) {
	registry := NewRegistry(razorpay.New(), nil)

	adapter, err := registry.Adapter(" RazorPay ")
	require.NoError(t, err)
	assert.Equal(t, "razorpay", adapter.Provider())
	assert.True(t, registry.ProviderExists("razorpay"))
	assert.Equal(t, []string{"X-Razorpay-Signature"}, registry.SignatureHeaders())
}

func TestRegistryUnknownProvider(t *testing.T) {
	registry := NewRegistry(razorpay.New())

	_, err := registry.Adapter("stripe")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	var nilRegistry *Registry
	_, err = nilRegistry.Adapter("razorpay")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
	assert.False(t, nilRegistry.ProviderExists("razorpay"))
}
