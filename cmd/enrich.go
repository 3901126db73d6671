package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/enrich"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/pipeline"
	"github.com/sells-group/catalog-enrich/internal/resilience"
	"github.com/sells-group/catalog-enrich/internal/resolver"
	"github.com/sells-group/catalog-enrich/pkg/anthropic"
)

var (
	enrichBrand    string
	enrichCategory string
	enrichLimit    int
	enrichSamples  int
	enrichFull     bool
	enrichOffline  bool
	enrichPurge    bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run the enrichment pipeline over catalog candidates",
	Long:  "Selects candidate records, generates structured product content via Claude, scores quality, and writes enriched records to the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if !enrichOffline {
			if err := cfg.Validate("enrich"); err != nil {
				return err
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var (
			enricher enrich.Enricher
			provider *enrich.Provider
			state    *enrich.State
		)
		if !enrichOffline {
			state = enrich.NewState(resilience.FromCircuitConfig(cfg.Breaker.FailureThreshold, cfg.Breaker.CooldownSecs))
			provider = enrich.NewProvider(anthropic.NewClient(cfg.Anthropic.Key), enrich.Config{
				Identity:          keyIdentity(cfg.Anthropic.Key),
				Model:             cfg.Anthropic.Model,
				MaxTokens:         int64(cfg.Anthropic.MaxTokens),
				CallTimeout:       time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
				RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
				Retry:             retryFromConfig(),
			}, state)
			enricher = provider
		}

		res := resolver.New(resolver.Config{
			VendorDomains: cfg.Resolver.VendorDomains,
			VerifyTimeout: time.Duration(cfg.Resolver.TimeoutSecs) * time.Second,
		})

		sampleLimit := cfg.Enrich.SampleLimit
		if enrichSamples > 0 {
			sampleLimit = enrichSamples
		}

		p := pipeline.New(pipeline.Config{
			Model:            cfg.Anthropic.Model,
			Version:          cfg.Enrich.Version,
			MaxConcurrent:    cfg.Enrich.MaxConcurrent,
			SampleLimit:      sampleLimit,
			BudgetMaxTokens:  cfg.Budget.MaxTokens,
			BudgetMaxCostUSD: cfg.Budget.MaxCostUSD,
			SkipKeywords:     cfg.Enrich.SkipKeywords,
		}, st, enricher, res)

		mode := model.ModeSamples
		if enrichFull {
			mode = model.ModeFull
		}

		report, err := p.Run(ctx, pipeline.BatchDescriptor{
			BrandFilter:    enrichBrand,
			CategoryFilter: enrichCategory,
			Limit:          enrichLimit,
			Mode:           mode,
			Offline:        enrichOffline,
			Purge:          enrichPurge,
		})
		if err != nil {
			return err
		}

		if provider != nil {
			provider.Usage().LogCost(cfg.Anthropic.Model, "enrich")
			zap.L().Info("provider health",
				zap.Float64("estimated_cost_usd", provider.CostEstimate()),
				zap.Any("breakers", state.BreakerStates()),
			)
		}

		zap.L().Info("enrichment run finished",
			zap.String("run_id", report.ID),
			zap.Int("enriched", report.Enriched),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
		return nil
	},
}

// keyIdentity names a credential for breaker tracking without logging it.
func keyIdentity(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func retryFromConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMS,
		cfg.Retry.MaxBackoffMS,
		cfg.Retry.BackoffMultiplier,
		-1, // keep default jitter
	)
}

func init() {
	enrichCmd.Flags().StringVar(&enrichBrand, "brand", "", "only enrich records from this manufacturer")
	enrichCmd.Flags().StringVar(&enrichCategory, "category", "", "only enrich records in this category")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max records to process (0 = mode default)")
	enrichCmd.Flags().IntVar(&enrichSamples, "samples", 0, "sample count for samples mode (overrides config)")
	enrichCmd.Flags().BoolVar(&enrichFull, "full", false, "process the full candidate set instead of a sample")
	enrichCmd.Flags().BoolVar(&enrichOffline, "offline", false, "skip provider calls and write minimal enrichment")
	enrichCmd.Flags().BoolVar(&enrichPurge, "purge", false, "clear enriched records before the run")
	rootCmd.AddCommand(enrichCmd)
}
