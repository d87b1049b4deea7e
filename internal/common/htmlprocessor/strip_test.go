package htmlprocessor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripScripts(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		removed []string
		kept    []string
	}{
		{
			name:    "inline and external scripts",
			input:   `<html><head><script src="/app.js"></script></head><body><p>hi</p><script>alert(1)</script></body></html>`,
			removed: []string{"app.js", "alert(1)"},
			kept:    []string{"<p>hi</p>"},
		},
		{
			name:    "module and typed scripts",
			input:   `<html><body><script type="module">import x</script><script type=" Text/JavaScript ">y()</script></body></html>`,
			removed: []string{"import x", "y()"},
		},
		{
			name:  "data blocks kept",
			input: `<html><head><script type="application/ld+json">{"@type":"Article"}</script><script type="text/template"><b>t</b></script></head></html>`,
			kept:  []string{`{"@type":"Article"}`, "text/template"},
		},
		{
			name:    "script links",
			input:   `<html><head><link rel="modulepreload" href="/m.js"><link rel="preload" as="script" href="/p.js"><link rel="preload" as="style" href="/s.css"><link rel="stylesheet" href="/main.css"></head></html>`,
			removed: []string{"/m.js", "/p.js"},
			kept:    []string{"/s.css", "/main.css"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := StripScripts(tt.input)
			require.NoError(t, err)
			for _, s := range tt.removed {
				assert.NotContains(t, out, s)
			}
			for _, s := range tt.kept {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestStripScripts_PreservesShape(t *testing.T) {
	t.Run("document keeps html wrapper", func(t *testing.T) {
		out, err := StripScripts("<!DOCTYPE html><html><head><title>T</title></head><body></body></html>")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
		assert.Contains(t, out, "<title>T</title>")
	})

	t.Run("fragment stays a fragment", func(t *testing.T) {
		out, err := StripScripts(`<div id="main"><script>x()</script><p>body</p></div>`)
		require.NoError(t, err)
		assert.Equal(t, `<div id="main"><p>body</p></div>`, out)
	})
}

func TestTitle(t *testing.T) {
	title, err := Title("<html><head><title>  Example Domain \n</title></head></html>")
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", title)

	title, err = Title("<p>no title</p>")
	require.NoError(t, err)
	assert.Empty(t, title)

	title, err = Title("<title>" + strings.Repeat("é", 600) + "</title>")
	require.NoError(t, err)
	assert.Len(t, []rune(title), maxTitleLength)
}

func TestIsDocument(t *testing.T) {
	assert.True(t, isDocument("  <!doctype html><html>"))
	assert.True(t, isDocument("<HTML lang=en>"))
	assert.False(t, isDocument("<div>"))
	assert.False(t, isDocument(""))
}
