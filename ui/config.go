package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	// File being read. Empty for URLs and stdin, which are never reloaded.
	Path string

	// Initial word-wrap limit. Zero wraps at the terminal width.
	MaxWidth uint

	GlamourStyle string `env:"GLAMOUR_STYLE" envDefault:"auto"`

	// Hover control timing
	HoverDelay time.Duration `env:"READALOUD_HOVER_DELAY" envDefault:"150ms"`
	HideDelay  time.Duration `env:"READALOUD_HIDE_DELAY"  envDefault:"500ms"`

	// For debugging the UI
	SmoothScroll bool `env:"READALOUD_SMOOTH_SCROLL" envDefault:"true"`
	AllMotion    bool `env:"READALOUD_ALL_MOTION"    envDefault:"true"`
}

func (c Config) hoverDelay() time.Duration {
	if c.HoverDelay <= 0 {
		return 150 * time.Millisecond
	}
	return c.HoverDelay
}

func (c Config) hideDelay() time.Duration {
	if c.HideDelay <= 0 {
		return 500 * time.Millisecond
	}
	return c.HideDelay
}
