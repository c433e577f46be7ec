package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tweetor-social/tweetor/cachestore"
	"github.com/tweetor-social/tweetor/models"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spaolacci/murmur3"
)

type Decision string

const (
	Allow  Decision = "allow"
	Reject Decision = "reject"
)

type Verdict struct {
	Decision Decision
	// sorted, deduplicated; empty for Allow
	Categories []string
	// the classifier failed and the fail policy produced this verdict
	Degraded bool
	// last classifier error, when Degraded
	Err error
}

func (v Verdict) Allowed() bool {
	return v.Decision == Allow
}

// Anything able to produce a verdict for text. *Pipeline is the production
// implementation.
type Moderator interface {
	Moderate(ctx context.Context, text string) Verdict
}

// Implemented by moderators that remember verdicts. Forget drops whatever is
// remembered for text, so the next Moderate call asks the classifier again.
type Forgetter interface {
	Forget(ctx context.Context, text string) error
}

var _ Forgetter = (*Pipeline)(nil)

type Config struct {
	Categories []string
	Language   string
	FailPolicy FailPolicy
	Retry      RetryConfig
	// per-attempt bound on the classifier call
	Timeout time.Duration
	// optional; successful classifier results are cached by text hash
	Cache  cachestore.CacheStore
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Categories: DefaultCategories,
		Language:   "en",
		FailPolicy: FailOpen,
		Retry: RetryConfig{
			Attempts: 0,
			WaitMin:  250 * time.Millisecond,
			WaitMax:  2 * time.Second,
		},
		Timeout: 10 * time.Second,
	}
}

// Wraps a Classifier with timeout, retry, fail policy, and caching, and
// produces a binary verdict.
type Pipeline struct {
	classifier Classifier
	config     Config
	logger     *slog.Logger
}

func NewPipeline(classifier Classifier, config Config) *Pipeline {
	def := DefaultConfig()
	if len(config.Categories) == 0 {
		config.Categories = def.Categories
	}
	if config.Language == "" {
		config.Language = def.Language
	}
	if config.FailPolicy == "" {
		config.FailPolicy = def.FailPolicy
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Retry.Attempts < 0 {
		config.Retry.Attempts = 0
	}
	if config.Retry.WaitMin <= 0 {
		config.Retry.WaitMin = def.Retry.WaitMin
	}
	if config.Retry.WaitMax < config.Retry.WaitMin {
		config.Retry.WaitMax = config.Retry.WaitMin
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		classifier: classifier,
		config:     config,
		logger:     logger.With("component", "moderation"),
	}
}

func (p *Pipeline) Config() Config {
	return p.config
}

// Runs text through the classifier. Never returns an error: classifier
// failures are resolved by the configured FailPolicy and reported on the
// verdict.
func (p *Pipeline) Moderate(ctx context.Context, text string) Verdict {
	key := p.cacheKey(text)
	if v, ok := p.cachedVerdict(ctx, key); ok {
		verdictCacheHits.Inc()
		p.countVerdict(v)
		return v
	}

	resp, err := p.classifyWithRetry(ctx, text)
	if err != nil {
		v := p.failVerdict(err)
		p.logger.Warn("content classifier failed, applying fail policy", "err", err, "policy", p.config.FailPolicy, "decision", v.Decision)
		p.countVerdict(v)
		return v
	}

	v := verdictFromMatches(resp.Matches)
	p.storeVerdict(ctx, key, v)
	if !v.Allowed() {
		p.logger.Info("content rejected by classifier", "categories", v.Categories)
	}
	p.countVerdict(v)
	return v
}

func (p *Pipeline) Forget(ctx context.Context, text string) error {
	if p.config.Cache == nil {
		return nil
	}
	if err := p.config.Cache.Purge(ctx, p.cacheKey(text)); err != nil {
		return fmt.Errorf("purging cached verdict: %w", err)
	}
	return nil
}

// Releases the verdict cache.
func (p *Pipeline) Close() error {
	if p.config.Cache == nil {
		return nil
	}
	return p.config.Cache.Close()
}

func (p *Pipeline) classifyWithRetry(ctx context.Context, text string) (*Response, error) {
	req := Request{
		Text:       text,
		Language:   p.config.Language,
		Categories: p.config.Categories,
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.Retry.Attempts; attempt++ {
		if attempt > 0 {
			wait := retryablehttp.DefaultBackoff(p.config.Retry.WaitMin, p.config.Retry.WaitMax, attempt-1, nil)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w (after %v)", models.ErrExternalService, ctx.Err(), lastErr)
			case <-time.After(wait):
			}
		}

		resp, err := p.classifyOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		classifierFailureCount.WithLabelValues(strconv.FormatBool(IsPermanent(err))).Inc()
		if IsPermanent(err) || ctx.Err() != nil {
			break
		}
		if attempt < p.config.Retry.Attempts {
			p.logger.Debug("retrying content classifier", "attempt", attempt+1, "err", err)
		}
	}
	return nil, lastErr
}

func (p *Pipeline) classifyOnce(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.classifier.Classify(ctx, req)
	classifierDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrExternalService, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrExternalService, Permanent(errors.New("empty classifier response")))
	}
	if resp.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: classifier status %q", models.ErrExternalService, resp.Status)
	}
	return resp, nil
}

func (p *Pipeline) failVerdict(err error) Verdict {
	v := Verdict{
		Decision: Allow,
		Degraded: true,
		Err:      err,
	}
	if p.config.FailPolicy == FailClosed {
		v.Decision = Reject
	}
	return v
}

func (p *Pipeline) countVerdict(v Verdict) {
	verdictCount.WithLabelValues(string(v.Decision), strconv.FormatBool(v.Degraded)).Inc()
}

func verdictFromMatches(matches []string) Verdict {
	seen := make(map[string]bool, len(matches))
	cats := []string{}
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		cats = append(cats, m)
	}
	if len(cats) == 0 {
		return Verdict{Decision: Allow}
	}
	sort.Strings(cats)
	return Verdict{Decision: Reject, Categories: cats}
}

func (p *Pipeline) cacheKey(text string) string {
	raw := p.config.Language + "\x00" + strings.Join(p.config.Categories, ",") + "\x00" + text
	return fmt.Sprintf("verdict/%016x", murmur3.Sum64([]byte(raw)))
}

// cached values are "allow" or "reject:<cat>,<cat>"
func (p *Pipeline) cachedVerdict(ctx context.Context, key string) (Verdict, bool) {
	if p.config.Cache == nil {
		return Verdict{}, false
	}
	val, ok, err := p.config.Cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("verdict cache read failed", "err", err)
		return Verdict{}, false
	}
	if !ok {
		return Verdict{}, false
	}
	switch {
	case val == string(Allow):
		return Verdict{Decision: Allow}, true
	case strings.HasPrefix(val, string(Reject)+":"):
		return verdictFromMatches(strings.Split(strings.TrimPrefix(val, string(Reject)+":"), ",")), true
	default:
		return Verdict{}, false
	}
}

func (p *Pipeline) storeVerdict(ctx context.Context, key string, v Verdict) {
	if p.config.Cache == nil {
		return
	}
	val := string(Allow)
	if !v.Allowed() {
		val = string(Reject) + ":" + strings.Join(v.Categories, ",")
	}
	if err := p.config.Cache.Set(ctx, key, val); err != nil {
		p.logger.Warn("verdict cache write failed", "err", err)
	}
}
