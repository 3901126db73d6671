// Package enrich implements the AI provider client for catalog enrichment:
// prompt construction, retry with backoff, a circuit breaker keyed by
// provider identity, a per-run response cache, and token/cost accounting.
package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/resilience"
	"github.com/sells-group/catalog-enrich/pkg/anthropic"
)

// Request describes one catalog item to enrich.
type Request struct {
	PartNumber    string
	Manufacturer  string
	Name          string
	Description   string
	Category      string
	UnitOfMeasure string
	CustomMemo    string
	CustomText    string
	Tags          []string
}

// Result is the outcome of one enrichment exchange.
type Result struct {
	Sections  model.Sections
	Warnings  []string
	Usage     anthropic.TokenUsage
	FromCache bool
	Fallback  bool
}

// Enricher is the contract the orchestrator depends on.
type Enricher interface {
	Enrich(ctx context.Context, req Request) (*Result, error)
}

// Config holds provider tuning.
type Config struct {
	// Identity names the credential the breaker tracks, e.g. a key prefix.
	Identity          string
	Model             string
	MaxTokens         int64
	CallTimeout       time.Duration
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
}

// State holds the mutable per-instance provider state: breaker registry,
// per-run response cache, and usage counters. It is injected rather than
// package-level so tests construct isolated instances.
type State struct {
	breakers *resilience.ServiceBreakers

	mu    sync.Mutex
	cache map[string]cachedResult
	usage anthropic.TokenUsage
	calls int64
}

// cachedResult keeps the parse outcome alongside the sections so a cache
// hit replays warnings and fallback status instead of laundering a degraded
// response into a clean one.
type cachedResult struct {
	sections model.Sections
	warnings []string
	fallback bool
}

// NewState creates provider state with the given breaker config.
func NewState(breakerCfg resilience.CircuitBreakerConfig) *State {
	// Only credential failures trip the provider breaker; transient noise
	// is handled by the retry layer.
	if breakerCfg.ShouldTrip == nil {
		breakerCfg.ShouldTrip = resilience.IsAuth
	}
	return &State{
		breakers: resilience.NewServiceBreakers(breakerCfg),
		cache:    make(map[string]cachedResult),
	}
}

// Usage returns a snapshot of accumulated token usage.
func (s *State) Usage() anthropic.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Calls returns how many network calls were made.
func (s *State) Calls() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// BreakerStates snapshots each tracked credential's breaker state for run
// summaries.
func (s *State) BreakerStates() map[string]string {
	states := s.breakers.States()
	out := make(map[string]string, len(states))
	for id, state := range states {
		out[id] = state.String()
	}
	return out
}

func (s *State) cached(fp string) (cachedResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.cache[fp]
	return res, ok
}

func (s *State) store(fp string, res cachedResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[fp] = res
}

func (s *State) account(u anthropic.TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.Add(u)
	s.calls++
}

// Provider is the production Enricher backed by the Anthropic API.
type Provider struct {
	client  anthropic.Client
	cfg     Config
	state   *State
	limiter *rate.Limiter
}

// NewProvider wires a Provider from its collaborators.
func NewProvider(client anthropic.Client, cfg Config, state *State) *Provider {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Identity == "" {
		cfg.Identity = "anthropic"
	}
	return &Provider{
		client:  client,
		cfg:     cfg,
		state:   state,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// Usage exposes accumulated token usage for budget checks.
func (p *Provider) Usage() anthropic.TokenUsage {
	return p.state.Usage()
}

// CostEstimate returns the estimated spend so far in USD.
func (p *Provider) CostEstimate() float64 {
	return p.state.Usage().EstimateCost(p.cfg.Model)
}

// Enrich performs one enrichment exchange. Transient failures are retried
// with backoff; auth failures feed the breaker and fail the item. While the
// breaker is open, calls short-circuit to a fallback result without any
// network I/O. Malformed responses degrade to the fallback with a warning.
func (p *Provider) Enrich(ctx context.Context, req Request) (*Result, error) {
	prompt := BuildPrompt(req)
	fp := Fingerprint(p.cfg.Model, prompt)

	if hit, ok := p.state.cached(fp); ok {
		return &Result{
			Sections:  hit.sections,
			Warnings:  hit.warnings,
			Fallback:  hit.fallback,
			FromCache: true,
		}, nil
	}

	breaker := p.state.breakers.Get(p.cfg.Identity)

	resp, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return p.callWithRetry(ctx, prompt)
	})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			zap.L().Warn("provider circuit open, serving fallback",
				zap.String("identity", p.cfg.Identity),
				zap.String("part_number", req.PartNumber),
			)
			sec := MinimalSections(req)
			return &Result{
				Sections: sec,
				Warnings: []string{"provider circuit open: fallback enrichment"},
				Fallback: true,
			}, nil
		}
		return nil, eris.Wrapf(err, "enrich: provider call for %s", req.PartNumber)
	}

	p.state.account(resp.Usage)

	sections, warnings := ParseSections(resp.Text(), req)
	sections.ClampSynonyms()
	p.state.store(fp, cachedResult{
		sections: sections,
		warnings: warnings,
		fallback: len(warnings) > 0,
	})

	return &Result{
		Sections: sections,
		Warnings: warnings,
		Usage:    resp.Usage,
		Fallback: len(warnings) > 0,
	}, nil
}

func (p *Provider) callWithRetry(ctx context.Context, prompt string) (*anthropic.MessageResponse, error) {
	retryCfg := p.cfg.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = resilience.DefaultRetryConfig()
	}
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger("anthropic", "enrich")
	}

	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "enrich: rate limiter")
		}

		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()

		resp, err := p.client.CreateMessage(callCtx, anthropic.MessageRequest{
			Model:     p.cfg.Model,
			MaxTokens: p.cfg.MaxTokens,
			System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	})
}

// classify maps provider errors onto the retry/breaker taxonomy.
func classify(err error) error {
	if code, ok := anthropic.HTTPStatus(err); ok {
		switch {
		case resilience.IsAuthHTTPStatus(code):
			return resilience.NewAuthError(err, code)
		case resilience.IsTransientHTTPStatus(code):
			return resilience.NewTransientError(err, code)
		default:
			return err
		}
	}
	// No HTTP response: let the string/netErr heuristics decide.
	return err
}

// Fingerprint derives the response-cache key from the outbound prompt.
func Fingerprint(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:16])
}

// MinimalSections builds the fallback enrichment used for offline runs,
// open-breaker short circuits, and unparseable responses. It carries just
// the identity fields already known from the raw record.
func MinimalSections(req Request) model.Sections {
	return model.Sections{
		Identity: model.IdentitySection{
			Name:       strings.TrimSpace(req.Name),
			PartNumber: strings.TrimSpace(req.PartNumber),
			Brand:      strings.TrimSpace(req.Manufacturer),
		},
	}
}
