package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		src     string
		kind    Kind
		wantErr bool
	}{
		{"tracker.example.com/p.gif", Exact, false},
		{"*doubleclick.net*", Wildcard, false},
		{"*", Wildcard, false},
		{"~^https://cdn\\.example\\.org/", Regexp, false},
		{"~*\\.ads\\.", Regexp, false},
		{"  *padded*  ", Wildcard, false},
		{"", 0, true},
		{"   ", 0, true},
		{"~[unclosed", 0, true},
		{"~*(", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p, err := Compile(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind)
		})
	}
}

func TestPattern_Match(t *testing.T) {
	tests := []struct {
		src   string
		input string
		want  bool
	}{
		{"tracker.example.com/p.gif", "TRACKER.example.com/p.gif", true},
		{"tracker.example.com/p.gif", "tracker.example.com/p.gif?x=1", false},

		{"*doubleclick.net*", "https://ad.DoubleClick.net/ddm/ad", true},
		{"*doubleclick.net*", "https://example.com/", false},
		{"*/ads/*", "https://example.com/ads/banner.png", true},
		{"*/ads/*", "https://example.com/adsense.js", false},
		{"https://*.example.com/*.js", "https://cdn.example.com/app.js", true},
		{"https://*.example.com/*.js", "https://cdn.example.com/app.css", false},
		{"ab*ba", "aba", false},
		{"*", "", true},

		{"~^https://cdn\\.Example\\.org/", "https://cdn.Example.org/pixel", true},
		{"~^https://cdn\\.Example\\.org/", "https://cdn.example.org/pixel", false},
		{"~*^https://cdn\\.Example\\.org/", "https://cdn.example.org/pixel", true},
	}

	for _, tt := range tests {
		t.Run(tt.src+" "+tt.input, func(t *testing.T) {
			p, err := Compile(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Match(tt.input))
		})
	}
}

func TestPattern_NilMatchesNothing(t *testing.T) {
	var p *Pattern
	assert.False(t, p.Match("anything"))
	assert.Empty(t, p.String())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "wildcard", Wildcard.String())
	assert.Equal(t, "regexp", Regexp.String())
	assert.Equal(t, "exact", Exact.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
