package crawler

import (
	"fmt"
	"time"
)

// Engine defaults.
const (
	DefaultConcurrency  = 25
	DefaultMaxPages     = 5000
	DefaultMaxQueue     = 20000
	DefaultDepth        = 12
	DefaultFetchTimeout = 6 * time.Second
)

// Config captures every knob that influences a traversal.
type Config struct {
	// Concurrency bounds the number of in-flight fetches per traversal.
	Concurrency int
	// MaxPages stops launching fetches once this many articles were indexed.
	MaxPages int
	// MaxQueue bounds the frontier; links discovered beyond it are dropped.
	MaxQueue int
	// DefaultDepth applies to sources without a depth of their own.
	DefaultDepth int
	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration
}

// WithDefaults fills zero values with the package defaults.
func (c Config) WithDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = DefaultMaxQueue
	}
	if c.DefaultDepth <= 0 {
		c.DefaultDepth = DefaultDepth
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("crawler.concurrency must be >= 0")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.MaxQueue < 0 {
		return fmt.Errorf("crawler.max_queue must be >= 0")
	}
	if c.DefaultDepth < 0 {
		return fmt.Errorf("crawler.default_depth must be >= 0")
	}
	return nil
}
