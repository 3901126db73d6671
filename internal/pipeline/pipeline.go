// Package pipeline orchestrates catalog enrichment: candidate selection,
// the skip policy, budget enforcement, provider calls through a bounded
// worker pool, scoring, asset resolution, and persistence.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-enrich/internal/contenthash"
	"github.com/sells-group/catalog-enrich/internal/enrich"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/resolver"
	"github.com/sells-group/catalog-enrich/internal/scorer"
	"github.com/sells-group/catalog-enrich/internal/store"
)

// BatchDescriptor selects and shapes one enrichment run.
type BatchDescriptor struct {
	BrandFilter    string
	CategoryFilter string
	Limit          int
	Mode           model.RunMode
	Offline        bool
	Purge          bool
}

// Config holds orchestrator tuning.
type Config struct {
	// Model names the provider model, used for cost estimation.
	Model string

	// Version marks the enrichment schema/prompt revision. A version bump
	// invalidates stored hashes.
	Version string

	// MaxConcurrent bounds the worker pool. Default: 4.
	MaxConcurrent int

	// SampleLimit caps samples-mode batches when no explicit limit is set.
	// Default: 25.
	SampleLimit int

	// BudgetMaxTokens and BudgetMaxCostUSD are the run ceilings. Zero
	// disables the respective check.
	BudgetMaxTokens  int64
	BudgetMaxCostUSD float64

	// SkipKeywords are matched case-insensitively against name and unit of
	// measure. Defaults to the upstream placeholder markers.
	SkipKeywords []string
}

// defaultSkipKeywords mark upstream placeholder rows that must never reach
// the provider.
var defaultSkipKeywords = []string{"localization", "base unit"}

// Pipeline runs enrichment batches.
type Pipeline struct {
	cfg      Config
	store    store.Store
	enricher enrich.Enricher
	resolver *resolver.Resolver
}

// New wires a Pipeline from its collaborators.
func New(cfg Config, st store.Store, enricher enrich.Enricher, res *resolver.Resolver) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.SampleLimit <= 0 {
		cfg.SampleLimit = 25
	}
	if cfg.Version == "" {
		cfg.Version = "v1"
	}
	if len(cfg.SkipKeywords) == 0 {
		cfg.SkipKeywords = defaultSkipKeywords
	}
	return &Pipeline{cfg: cfg, store: st, enricher: enricher, resolver: res}
}

// runState accumulates counters and events across workers.
type runState struct {
	mu        sync.Mutex
	processed int
	enriched  int
	skipped   int
	failed    int
	tokens    int64
	cost      float64
	events    []model.RunEvent
}

func (s *runState) usageSnapshot() (int64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, s.cost
}

func (s *runState) addUsage(tokens int64, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens += tokens
	s.cost += cost
}

func (s *runState) overBudget(maxTokens int64, maxCost float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxTokens > 0 && s.tokens >= maxTokens {
		return true
	}
	if maxCost > 0 && s.cost >= maxCost {
		return true
	}
	return false
}

func (s *runState) record(ev model.RunEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// itemOutcome classifies one record's result for counting.
type itemOutcome int

const (
	outcomeEnriched itemOutcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *runState) count(o itemOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	switch o {
	case outcomeEnriched:
		s.enriched++
	case outcomeSkipped:
		s.skipped++
	case outcomeFailed:
		s.failed++
	}
}

// Run executes one batch and persists its report. Per-item failures never
// abort the batch; only candidate listing (store unreachable) does.
func (p *Pipeline) Run(ctx context.Context, desc BatchDescriptor) (*model.RunReport, error) {
	runID := uuid.New().String()
	startedAt := time.Now().UTC()

	if desc.Mode == "" {
		desc.Mode = model.ModeSamples
	}

	if desc.Purge {
		n, err := p.store.PurgeEnriched(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: purge")
		}
		zap.L().Info("purged enriched records", zap.Int64("count", n))
	}

	limit := desc.Limit
	if desc.Mode == model.ModeSamples && limit <= 0 {
		limit = p.cfg.SampleLimit
	}

	candidates, err := p.store.ListCandidates(ctx, store.CandidateFilter{
		Brand:    desc.BrandFilter,
		Category: desc.CategoryFilter,
		Limit:    limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list candidates")
	}

	state := &runState{}
	p.log(ctx, runID, state, model.NewRunEvent("info", "pipeline", "run started", map[string]any{
		"mode":       string(desc.Mode),
		"offline":    desc.Offline,
		"candidates": len(candidates),
	}))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)

	for _, raw := range candidates {
		// The ceiling is checked before scheduling: in-flight items finish,
		// no new ones start.
		if state.overBudget(p.cfg.BudgetMaxTokens, p.cfg.BudgetMaxCostUSD) {
			tokens, cost := state.usageSnapshot()
			p.log(ctx, runID, state, model.NewRunEvent("warn", "pipeline", model.EventBudgetExceeded, map[string]any{
				"tokens_used":   tokens,
				"cost_estimate": cost,
			}))
			break
		}

		raw := raw
		g.Go(func() error {
			p.processItem(gCtx, runID, state, raw, desc.Offline)
			return nil
		})
	}

	// Workers never return errors; Wait only propagates context cancellation.
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: wait")
	}

	report := &model.RunReport{
		ID:           runID,
		Mode:         desc.Mode,
		Offline:      desc.Offline,
		Processed:    state.processed,
		Enriched:     state.enriched,
		Skipped:      state.skipped,
		Failed:       state.failed,
		TokensUsed:   state.tokens,
		CostEstimate: state.cost,
		Events:       state.events,
		StartedAt:    startedAt,
		FinishedAt:   time.Now().UTC(),
	}

	if err := p.store.SaveRun(ctx, report); err != nil {
		zap.L().Error("failed to persist run report", zap.String("run_id", runID), zap.Error(err))
	}

	zap.L().Info("run complete",
		zap.String("run_id", runID),
		zap.Int("processed", report.Processed),
		zap.Int("enriched", report.Enriched),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int64("tokens_used", report.TokensUsed),
		zap.Float64("cost_estimate", report.CostEstimate),
	)
	return report, nil
}

// processItem enriches one record. All failures are absorbed here.
func (p *Pipeline) processItem(ctx context.Context, runID string, state *runState, raw model.RawProductRecord, offline bool) {
	key := raw.Key()

	if reason := p.skipReason(raw); reason != "" {
		state.count(outcomeSkipped)
		p.log(ctx, runID, state, model.NewRunEvent("info", "skip", reason, map[string]any{"key": key.String()}))
		return
	}

	hash := contenthash.Compute(raw)

	stored, err := p.store.GetEnriched(ctx, key)
	if err != nil {
		state.count(outcomeFailed)
		p.log(ctx, runID, state, model.NewRunEvent("error", "store", "lookup failed", map[string]any{
			"key": key.String(), "error": err.Error(),
		}))
		return
	}
	if stored != nil && stored.Hash == hash && stored.Version == p.cfg.Version {
		state.count(outcomeSkipped)
		p.log(ctx, runID, state, model.NewRunEvent("info", "skip", "content hash unchanged", map[string]any{"key": key.String()}))
		return
	}

	req := enrichRequest(raw)

	var sections model.Sections
	var warnings []string
	if offline {
		sections = enrich.MinimalSections(req)
	} else {
		res, err := p.enricher.Enrich(ctx, req)
		if err != nil {
			state.count(outcomeFailed)
			p.log(ctx, runID, state, model.NewRunEvent("error", "enrich", "provider call failed", map[string]any{
				"key": key.String(), "error": err.Error(),
			}))
			return
		}
		sections = res.Sections
		warnings = res.Warnings
		if res.Usage.Total() > 0 {
			state.addUsage(res.Usage.Total(), res.Usage.EstimateCost(p.cfg.Model))
		}
	}

	score, bucket := scorer.Score(sections)

	rec := &model.EnrichedRecord{
		Manufacturer:  raw.Manufacturer,
		PartNumber:    raw.PartNumber,
		Sections:      sections,
		QualityScore:  score,
		QualityBucket: bucket,
		RuleTags:      sections.Identity.RuleTags,
		Synonyms:      sections.Identity.Synonyms,
		Hash:          hash,
		Version:       p.cfg.Version,
		Warnings:      warnings,
	}

	if p.resolver != nil {
		assets := p.resolver.Resolve(ctx, resolver.Hints{
			Manufacturer:  raw.Manufacturer,
			PartNumber:    raw.PartNumber,
			ImageURLs:     raw.ImageURLs,
			SpecSheetURLs: raw.SpecSheetURLs,
		})
		rec.ImageRef = assets.ImageRef
		rec.SpecRef = assets.SpecRef
	}

	written, err := p.store.UpsertEnriched(ctx, rec)
	if err != nil {
		state.count(outcomeFailed)
		p.log(ctx, runID, state, model.NewRunEvent("error", "store", "upsert failed", map[string]any{
			"key": key.String(), "error": err.Error(),
		}))
		return
	}
	if !written {
		state.count(outcomeSkipped)
		p.log(ctx, runID, state, model.NewRunEvent("info", "skip", "store reported no change", map[string]any{"key": key.String()}))
		return
	}

	state.count(outcomeEnriched)
	p.log(ctx, runID, state, model.NewRunEvent("info", "enrich", "item enriched", map[string]any{
		"key":            key.String(),
		"quality_score":  score,
		"quality_bucket": string(bucket),
		"warnings":       len(warnings),
	}))
}

// skipReason applies the pre-provider skip policy. Empty means eligible.
func (p *Pipeline) skipReason(raw model.RawProductRecord) string {
	if raw.Cost == 0 {
		return "zero cost"
	}
	name := strings.ToLower(raw.Name)
	uom := strings.ToLower(raw.UnitOfMeasure)
	for _, kw := range p.cfg.SkipKeywords {
		kw = strings.ToLower(kw)
		if strings.Contains(name, kw) || strings.Contains(uom, kw) {
			return "disallowed keyword: " + kw
		}
	}
	return ""
}

// log records the event on the report and appends it to the persistent
// pipeline log. Log persistence failures are never fatal.
func (p *Pipeline) log(ctx context.Context, runID string, state *runState, ev model.RunEvent) {
	state.record(ev)
	if err := p.store.AppendLog(ctx, runID, ev); err != nil {
		zap.L().Warn("failed to append pipeline log", zap.String("run_id", runID), zap.Error(err))
	}
}

func enrichRequest(raw model.RawProductRecord) enrich.Request {
	return enrich.Request{
		PartNumber:    raw.PartNumber,
		Manufacturer:  raw.Manufacturer,
		Name:          raw.Name,
		Description:   raw.Description,
		Category:      raw.Category,
		UnitOfMeasure: raw.UnitOfMeasure,
		CustomMemo:    raw.CustomMemo,
		CustomText:    raw.CustomText,
		Tags:          raw.Tags,
	}
}
