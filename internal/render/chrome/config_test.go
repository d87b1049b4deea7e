package chrome

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_CalculatePoolSize(t *testing.T) {
	config := DefaultConfig()

	config.PoolSize = "10"
	assert.Equal(t, 10, config.CalculatePoolSize())

	config.PoolSize = "auto"
	auto := config.CalculatePoolSize()
	assert.GreaterOrEqual(t, auto, minAutoPoolSize)
	assert.LessOrEqual(t, auto, maxAutoPoolSize)

	config.RemoteURL = "ws://127.0.0.1:9222/devtools/browser/abc"
	config.PoolSize = "8"
	assert.Equal(t, 1, config.CalculatePoolSize())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		expectErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"auto pool size", func(c *Config) { c.PoolSize = "auto" }, false},
		{"negative pool size", func(c *Config) { c.PoolSize = "-1" }, true},
		{"garbage pool size", func(c *Config) { c.PoolSize = "many" }, true},
		{"zero restart count", func(c *Config) { c.RestartAfterCount = 0 }, true},
		{"zero restart time", func(c *Config) { c.RestartAfterTime = 0 }, true},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, true},
		{"websocket remote", func(c *Config) { c.RemoteURL = "wss://browser.example:443/devtools/browser/x" }, false},
		{"http remote", func(c *Config) { c.RemoteURL = "http://127.0.0.1:9222" }, true},
		{"flags", func(c *Config) { c.ExtraFlags = []string{"--lang=de", "disable-gpu"} }, false},
		{"empty flag", func(c *Config) { c.ExtraFlags = []string{"--"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modifyFn(config)

			err := config.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		flag  string
		name  string
		value any
	}{
		{"--disable-gpu", "disable-gpu", true},
		{"lang=de-DE", "lang", "de-DE"},
		{"  --proxy-server=socks5://127.0.0.1:1080 ", "proxy-server", "socks5://127.0.0.1:1080"},
	}
	for _, tt := range tests {
		name, value := parseFlag(tt.flag)
		assert.Equal(t, tt.name, name)
		assert.Equal(t, tt.value, value)
	}
}

func TestElementRectsJS(t *testing.T) {
	js := elementRectsJS(`div[data-x="1"]`, true)
	assert.Contains(t, js, `const sel = "div[data-x=\"1\"]";`)
	assert.Contains(t, js, "true ? Array.from(document.querySelectorAll(sel))")
	assert.Contains(t, js, "window.scrollY")

	assert.Contains(t, elementRectsJS("#a", false), "false ? Array.from")
}

func TestOuterHTMLJS(t *testing.T) {
	assert.Equal(t,
		`(() => { const el = document.querySelector("#main"); return el ? el.outerHTML : null; })()`,
		outerHTMLJS("#main"))
}
