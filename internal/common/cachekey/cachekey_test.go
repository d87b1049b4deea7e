package cachekey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

func build(t *testing.T, b *types.CaptureRequestBuilder) types.CaptureRequest {
	t.Helper()
	req, err := b.Build()
	require.NoError(t, err)
	return req
}

func TestFingerprint(t *testing.T) {
	base := build(t, types.NewCaptureRequestBuilder("https://example.com/").Viewport(800, 600))

	same := build(t, types.NewCaptureRequestBuilder("https://example.com/").Viewport(800, 600).
		Output("elsewhere.png").Verbosity(true, false).Fail(true))
	differentWidth := build(t, types.NewCaptureRequestBuilder("https://example.com/").Viewport(1024, 600))
	differentURL := build(t, types.NewCaptureRequestBuilder("https://example.org/").Viewport(800, 600))
	withSelector := build(t, types.NewCaptureRequestBuilder("https://example.com/").Viewport(800, 600).Selector("#main"))

	fp := func(r types.CaptureRequest) string {
		s, err := Fingerprint(r)
		require.NoError(t, err)
		return s
	}

	assert.Equal(t, fp(base), fp(same))
	assert.NotEqual(t, fp(base), fp(differentWidth))
	assert.NotEqual(t, fp(base), fp(differentURL))
	assert.NotEqual(t, fp(base), fp(withSelector))
}

func TestKey(t *testing.T) {
	req := build(t, types.NewCaptureRequestBuilder("https://example.com/").Format("pdf"))
	key, err := Key(req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "artifact:pdf:"))
}
