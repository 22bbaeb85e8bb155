package config

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"time"

	"github.com/nao1215/lexcrawl/internal/crawler"
	"github.com/nao1215/lexcrawl/internal/fetcher"
	"github.com/nao1215/lexcrawl/internal/ratelimit"
	"github.com/nao1215/lexcrawl/internal/retry"
	"github.com/nao1215/lexcrawl/internal/site"
)

// RateLimitConfig configures the token bucket of a source.
type RateLimitConfig struct {
	// Capacity is the burst size.
	Capacity int `yaml:"capacity,omitempty"`

	// RefillRatePerMs is the number of tokens added per millisecond.
	RefillRatePerMs float64 `yaml:"refillRatePerMs,omitempty"`

	// MinDelay is the minimum spacing between two requests, e.g. "500ms".
	MinDelay time.Duration `yaml:"minDelay,omitempty"`
}

// RetryConfig configures the retry policy of a source.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"maxAttempts,omitempty"`
	InitialDelay  time.Duration `yaml:"initialDelay,omitempty"`
	MaxDelay      time.Duration `yaml:"maxDelay,omitempty"`
	BackoffFactor float64       `yaml:"backoffFactor,omitempty"`

	// Jitter is a pointer so that an explicit 0 disables jitter.
	Jitter *float64 `yaml:"jitter,omitempty"`
}

// SourceConfig describes one publication source: where its listing starts,
// how to read it, and how politely to fetch it.
type SourceConfig struct {
	// BaseURL is the first listing page.
	BaseURL string `yaml:"baseURL,omitempty"`

	// DocumentType is stored on every document of the source (decree, notice...).
	DocumentType string `yaml:"documentType,omitempty"`

	// LinkSelector is a CSS selector for document links on listing pages.
	LinkSelector string `yaml:"linkSelector,omitempty"`

	// NextSelector is a CSS selector for the next-page link.
	NextSelector string `yaml:"nextSelector,omitempty"`

	// Include are URL path glob patterns a document link must match.
	Include []string `yaml:"include,omitempty"`

	// Exclude are URL path glob patterns that reject a document link.
	Exclude []string `yaml:"exclude,omitempty"`

	// IDPattern extracts the external id from a document URL; the first
	// capture group wins. Empty uses the normalized URL.
	IDPattern string `yaml:"idPattern,omitempty"`

	// SameHost restricts document links to the listing's host.
	SameHost bool `yaml:"sameHost,omitempty"`

	// Headers are custom HTTP headers sent with every request of the source.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the default User-Agent.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Proxies are proxy URLs (socks5://, http://) used in rotation.
	Proxies []string `yaml:"proxies,omitempty"`

	// Timeout bounds a single fetch attempt, e.g. "30s".
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Workers is the number of documents fetched concurrently.
	Workers int `yaml:"workers,omitempty"`

	// MaxPages bounds pagination. 0 in the file means the default;
	// a negative value means unlimited.
	MaxPages int `yaml:"maxPages,omitempty"`

	RateLimit RateLimitConfig `yaml:"rateLimit,omitempty"`
	Retry     RetryConfig     `yaml:"retry,omitempty"`
}

// File represents the structure of the .lexcrawl sources file.
type File struct {
	// Defaults are applied to every source unless the source overrides them.
	Defaults SourceConfig `yaml:"defaults,omitempty"`

	// Sources maps a short source name (e.g. "jorf") to its configuration.
	Sources map[string]SourceConfig `yaml:"sources,omitempty"`
}

// SourceNames returns the names of all sources in sorted order.
func (cf *File) SourceNames() []string {
	return slices.Sorted(maps.Keys(cf.Sources))
}

// SourceConfig returns the configuration of a source merged over the file
// defaults, with package defaults filling whatever is still unset.
func (cf *File) SourceConfig(name string) (SourceConfig, error) {
	src, ok := cf.Sources[name]
	if !ok {
		return SourceConfig{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return merge(cf.Defaults, src).withDefaults(), nil
}

// merge overlays src on base. Slices replace, headers are merged key by key.
func merge(base, src SourceConfig) SourceConfig {
	result := base

	// Headers are written below; base's map must stay untouched.
	result.Headers = maps.Clone(base.Headers)

	if src.BaseURL != "" {
		result.BaseURL = src.BaseURL
	}
	if src.DocumentType != "" {
		result.DocumentType = src.DocumentType
	}
	if src.LinkSelector != "" {
		result.LinkSelector = src.LinkSelector
	}
	if src.NextSelector != "" {
		result.NextSelector = src.NextSelector
	}
	if len(src.Include) > 0 {
		result.Include = src.Include
	}
	if len(src.Exclude) > 0 {
		result.Exclude = src.Exclude
	}
	if src.IDPattern != "" {
		result.IDPattern = src.IDPattern
	}
	result.SameHost = base.SameHost || src.SameHost
	if len(src.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(src.Headers))
		}
		maps.Copy(result.Headers, src.Headers)
	}
	if src.UserAgent != "" {
		result.UserAgent = src.UserAgent
	}
	if len(src.Proxies) > 0 {
		result.Proxies = src.Proxies
	}
	if src.Timeout != 0 {
		result.Timeout = src.Timeout
	}
	if src.Workers != 0 {
		result.Workers = src.Workers
	}
	if src.MaxPages != 0 {
		result.MaxPages = src.MaxPages
	}

	if src.RateLimit.Capacity != 0 {
		result.RateLimit.Capacity = src.RateLimit.Capacity
	}
	if src.RateLimit.RefillRatePerMs != 0 {
		result.RateLimit.RefillRatePerMs = src.RateLimit.RefillRatePerMs
	}
	if src.RateLimit.MinDelay != 0 {
		result.RateLimit.MinDelay = src.RateLimit.MinDelay
	}

	if src.Retry.MaxAttempts != 0 {
		result.Retry.MaxAttempts = src.Retry.MaxAttempts
	}
	if src.Retry.InitialDelay != 0 {
		result.Retry.InitialDelay = src.Retry.InitialDelay
	}
	if src.Retry.MaxDelay != 0 {
		result.Retry.MaxDelay = src.Retry.MaxDelay
	}
	if src.Retry.BackoffFactor != 0 {
		result.Retry.BackoffFactor = src.Retry.BackoffFactor
	}
	if src.Retry.Jitter != nil {
		result.Retry.Jitter = src.Retry.Jitter
	}

	return result
}

// withDefaults fills unset fields with package defaults.
func (sc SourceConfig) withDefaults() SourceConfig {
	if sc.DocumentType == "" {
		sc.DocumentType = crawler.DefaultDocumentType
	}
	if sc.UserAgent == "" {
		sc.UserAgent = DefaultUserAgent
	}
	if sc.Timeout == 0 {
		sc.Timeout = DefaultTimeout
	}
	if sc.Workers == 0 {
		sc.Workers = DefaultWorkers
	}
	if sc.MaxPages == 0 {
		sc.MaxPages = DefaultMaxPages
	}

	rl := ratelimit.DefaultConfig()
	if sc.RateLimit.Capacity == 0 {
		sc.RateLimit.Capacity = rl.Capacity
	}
	if sc.RateLimit.RefillRatePerMs == 0 {
		sc.RateLimit.RefillRatePerMs = rl.RefillRatePerMs
	}
	if sc.RateLimit.MinDelay == 0 {
		sc.RateLimit.MinDelay = rl.MinDelay
	}

	rc := retry.DefaultConfig()
	if sc.Retry.MaxAttempts == 0 {
		sc.Retry.MaxAttempts = rc.MaxAttempts
	}
	if sc.Retry.InitialDelay == 0 {
		sc.Retry.InitialDelay = rc.InitialDelay
	}
	if sc.Retry.MaxDelay == 0 {
		sc.Retry.MaxDelay = rc.MaxDelay
	}
	if sc.Retry.BackoffFactor == 0 {
		sc.Retry.BackoffFactor = rc.BackoffFactor
	}
	if sc.Retry.Jitter == nil {
		jitter := rc.Jitter
		sc.Retry.Jitter = &jitter
	}

	return sc
}

// Validate checks the merged source configuration.
func (sc SourceConfig) Validate() error {
	if sc.BaseURL == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(sc.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, sc.BaseURL)
	}

	if sc.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if sc.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if err := sc.LimiterConfig().Validate(); err != nil {
		return err
	}

	if err := sc.validateRetry(); err != nil {
		return errors.Join(ErrInvalidRetry, err)
	}

	if len(sc.Proxies) > 0 {
		if _, err := fetcher.NewRoundRobin(sc.Proxies); err != nil {
			return err
		}
	}

	if _, err := site.NewHTMLAdapter(sc.SiteConfig()); err != nil {
		return err
	}
	return nil
}

func (sc SourceConfig) validateRetry() error {
	r := sc.Retry
	switch {
	case r.MaxAttempts < 1:
		return errors.New("maxAttempts must be at least 1")
	case r.InitialDelay <= 0:
		return errors.New("initialDelay must be positive")
	case r.MaxDelay < r.InitialDelay:
		return errors.New("maxDelay must not be below initialDelay")
	case r.BackoffFactor < 1:
		return errors.New("backoffFactor must be at least 1")
	case r.Jitter != nil && (*r.Jitter < 0 || *r.Jitter >= 1):
		return errors.New("jitter must be in [0, 1)")
	}
	return nil
}

// PageLimit returns the orchestrator page limit, 0 meaning unlimited.
func (sc SourceConfig) PageLimit() int {
	if sc.MaxPages < 0 {
		return 0
	}
	return sc.MaxPages
}

// LimiterConfig converts the rate limit settings.
func (sc SourceConfig) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Capacity:        sc.RateLimit.Capacity,
		RefillRatePerMs: sc.RateLimit.RefillRatePerMs,
		MinDelay:        sc.RateLimit.MinDelay,
	}
}

// RetryPolicyConfig converts the retry settings.
func (sc SourceConfig) RetryPolicyConfig() retry.Config {
	cfg := retry.Config{
		MaxAttempts:   sc.Retry.MaxAttempts,
		InitialDelay:  sc.Retry.InitialDelay,
		MaxDelay:      sc.Retry.MaxDelay,
		BackoffFactor: sc.Retry.BackoffFactor,
		Jitter:        retry.DefaultJitter,
	}
	if sc.Retry.Jitter != nil {
		cfg.Jitter = *sc.Retry.Jitter
	}
	return cfg
}

// SiteConfig converts the listing settings for site.NewHTMLAdapter.
func (sc SourceConfig) SiteConfig() site.Config {
	return site.Config{
		LinkSelector: sc.LinkSelector,
		NextSelector: sc.NextSelector,
		Include:      sc.Include,
		Exclude:      sc.Exclude,
		IDPattern:    sc.IDPattern,
		SameHost:     sc.SameHost,
	}
}
