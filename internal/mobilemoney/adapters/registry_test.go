package adapters_test

import (
	"testing"

	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters"
	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters/airtel"
	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters/mtn"
	"github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	registry := adapters.NewRegistry(mtn.New(""), airtel.New(""), nil)

	adapter, err := registry.Get(" MTN ")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderMTN, adapter.Provider())
	assert.True(t, registry.ProviderExists("airtel"))
	assert.False(t, registry.ProviderExists("mpesa"))

	_, err = registry.Get("mpesa")
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)

	var empty *adapters.Registry
	_, err = empty.Get("mtn")
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}

func TestHMACSHA256(t *testing.T) {
	a := adapters.HMACSHA256("key", []byte("body"))
	b := adapters.HMACSHA256("key", []byte("body"))
	c := adapters.HMACSHA256("other", []byte("body"))
	assert.Len(t, a, 32)
	assert.True(t, adapters.EqualMAC(a, b))
	assert.False(t, adapters.EqualMAC(a, c))
}
