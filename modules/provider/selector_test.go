package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveEndpointTextToImage(t *testing.T) {
	primary, fallbacks := ResolveEndpoint("schnell", "1K", false)

	assert.Equal(t, "fal-ai/flux/schnell", primary.Path())
	assert.False(t, primary.SupportsEdit)
	assert.NotEmpty(t, fallbacks)
}

func TestResolveEndpointWithInputImagesSupportsEdit(t *testing.T) {
	primary, fallbacks := ResolveEndpoint("dev", "1K", true)

	assert.True(t, primary.SupportsEdit)
	for _, fb := range fallbacks {
		assert.True(t, fb.SupportsEdit)
	}
}

func TestResolveEndpointHighResPromotesToPro(t *testing.T) {
	primary, _ := ResolveEndpoint("schnell", "2K", false)

	assert.Equal(t, "fal-ai/flux-pro/v1.1", primary.Path())
}

func TestResolveEndpointUnknownModelFallsBackToDev(t *testing.T) {
	primary, _ := ResolveEndpoint("does-not-exist", "1K", false)
	devPrimary, _ := ResolveEndpoint("dev", "1K", false)

	assert.Equal(t, devPrimary, primary)
}

func TestFallbackOrderIsDeterministic(t *testing.T) {
	_, first := ResolveEndpoint("pro", "1K", false)
	_, second := ResolveEndpoint("pro", "1K", false)

	assert.Equal(t, first, second)
}
