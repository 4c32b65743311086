package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	analyst "github.com/haowjy/meridian-analyst-go"
	"github.com/haowjy/meridian-analyst-go/internal/config"
	"github.com/haowjy/meridian-analyst-go/internal/observability"
	"github.com/haowjy/meridian-analyst-go/ledger"
	"github.com/haowjy/meridian-analyst-go/marketdata"
	"github.com/haowjy/meridian-analyst-go/providers/anthropic"
	"github.com/haowjy/meridian-analyst-go/providers/lorem"
)

const (
	truncationNotice = "⚠️ [Analysis cut short by the length limit]"
	failureNotice    = "analysis failed, please try again later"
)

// errDailyLimit is returned when the user has used up today's analyses.
var errDailyLimit = errors.New("daily analysis limit reached")

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, observability.InitLogger(cfg.LogLevel, cfg.LogPretty), nil
}

func loadCatalog(cfg *config.Config) (*analyst.Catalog, error) {
	if cfg.CatalogPath != "" {
		return analyst.LoadCatalogFromFile(cfg.CatalogPath)
	}
	return analyst.DefaultCatalog()
}

func loadModels(cfg *config.Config) (*analyst.ModelRegistry, error) {
	if cfg.ModelsPath != "" {
		return analyst.LoadModelsFromFile(cfg.ModelsPath)
	}
	return analyst.DefaultModels()
}

func buildProvider(cfg *config.Config, logger zerolog.Logger) (analyst.Provider, error) {
	id, err := analyst.ParseProviderID(cfg.Provider)
	if err != nil {
		return nil, err
	}
	switch id {
	case analyst.ProviderLorem:
		return lorem.NewProvider(lorem.WithLogger(logger)), nil
	default:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for analyze")
		}
		return anthropic.NewProvider(cfg.AnthropicAPIKey, anthropic.WithBaseURL(cfg.AnthropicBaseURL))
	}
}

func buildAnalyzer(cfg *config.Config, logger zerolog.Logger, metrics *analyst.Metrics) (*analyst.Analyzer, error) {
	if cfg.FMPAPIKey == "" {
		return nil, fmt.Errorf("FMP_API_KEY is required for analyze")
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("load tool catalog: %w", err)
	}
	models, err := loadModels(cfg)
	if err != nil {
		return nil, fmt.Errorf("load model registry: %w", err)
	}
	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	burst := int(math.Max(1, math.Ceil(cfg.MarketDataRPS)))
	market, err := marketdata.NewFMPClient(cfg.FMPAPIKey,
		marketdata.WithBaseURL(cfg.FMPBaseURL),
		marketdata.WithRateLimit(cfg.MarketDataRPS, burst),
		marketdata.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create market data client: %w", err)
	}

	executor := analyst.NewToolExecutor(market, catalog,
		analyst.WithExecutorLogger(logger),
		analyst.WithExecutorMetrics(metrics),
		analyst.WithHistoryDays(cfg.HistoryDays),
	)
	return analyst.NewAnalyzer(provider, executor,
		analyst.WithLogger(logger),
		analyst.WithMetrics(metrics),
		analyst.WithModels(models),
		analyst.WithMaxTurns(cfg.MaxTurns),
		analyst.WithModel(cfg.Model),
		analyst.WithMaxTokens(cfg.MaxTokens),
	), nil
}

func holdings(positions []ledger.Position) []analyst.Holding {
	out := make([]analyst.Holding, len(positions))
	for i, p := range positions {
		out[i] = analyst.Holding{Ticker: p.Ticker, Quantity: float64(p.Quantity), AvgPrice: p.AvgPrice}
	}
	return out
}

func cmdAnalyze(ctx context.Context, cmd *cli.Command) error {
	ticker := cmd.Args().First()
	if ticker == "" {
		return fmt.Errorf("usage: analyst analyze <ticker> [--budget N]")
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	if !cmd.Bool("skip-limit") {
		allowed, count, err := store.CheckAndIncrement(ctx, cfg.UserID, time.Now(), cfg.DailyAnalysisLimit)
		if err != nil {
			return fmt.Errorf("check daily limit: %w", err)
		}
		if !allowed {
			return fmt.Errorf("%w (%d/%d)", errDailyLimit, count, cfg.DailyAnalysisLimit)
		}
	}

	positions, err := store.Positions(ctx, cfg.UserID)
	if err != nil {
		return fmt.Errorf("load portfolio: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := analyst.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	analyzer, err := buildAnalyzer(cfg, logger, metrics)
	if err != nil {
		return err
	}

	result, err := analyzer.Analyze(ctx, analyst.Subject{
		Ticker:    ticker,
		Budget:    cmd.Float("budget"),
		Portfolio: holdings(positions),
	})
	writeMetrics(cfg, registry, logger)
	if err != nil {
		logger.Error().
			Err(err).
			Bool("transport", analyst.IsTransportError(err)).
			Bool("turn_budget", analyst.IsTurnBudgetExceeded(err)).
			Msg("analysis failed")
		var validationErr *analyst.ValidationError
		if errors.As(err, &validationErr) {
			return err
		}
		return errors.New(failureNotice)
	}

	w := cmd.Root().Writer
	fmt.Fprintln(w, result.Text)
	if result.Truncated {
		fmt.Fprintf(w, "\n%s\n", truncationNotice)
	}
	logger.Info().
		Str("request_id", result.RequestID).
		Int("turns", result.Turns).
		Int("input_tokens", result.Usage.InputTokens).
		Int("output_tokens", result.Usage.OutputTokens).
		Float64("cost_usd", result.CostUSD).
		Bool("truncated", result.Truncated).
		Msg("analysis completed")
	return nil
}

// writeMetrics dumps the run's metrics for a textfile collector.
func writeMetrics(cfg *config.Config, registry *prometheus.Registry, logger zerolog.Logger) {
	if cfg.MetricsTextfile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, registry); err != nil {
		logger.Warn().Err(err).Str("path", cfg.MetricsTextfile).Msg("failed to write metrics")
	}
}

func cmdTrade(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 4 {
		return fmt.Errorf("usage: analyst trade <buy|sell> <ticker> <quantity> <price>")
	}
	side, err := ledger.ParseSide(args.Get(0))
	if err != nil {
		return err
	}
	quantity, err := strconv.ParseInt(args.Get(2), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", args.Get(2), err)
	}
	price, err := strconv.ParseFloat(args.Get(3), 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", args.Get(3), err)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	tx, err := store.AppendTransaction(ctx, ledger.Transaction{
		UserID:   cfg.UserID,
		Side:     side,
		Ticker:   args.Get(1),
		Quantity: quantity,
		Price:    price,
	})
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	logger.Debug().Str("id", tx.ID).Msg("trade recorded")

	fmt.Fprintf(cmd.Root().Writer, "Recorded %s %s: %d @ $%.2f (total $%.2f)\n",
		tx.Side, tx.Ticker, tx.Quantity, tx.Price, float64(tx.Quantity)*tx.Price)
	return nil
}

func cmdPortfolio(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	positions, err := store.Positions(ctx, cfg.UserID)
	if err != nil {
		return fmt.Errorf("load portfolio: %w", err)
	}

	w := cmd.Root().Writer
	if len(positions) == 0 {
		fmt.Fprintln(w, "Portfolio is empty. Record a trade with: analyst trade buy AAPL 10 150")
		return nil
	}
	fmt.Fprintln(w, "Portfolio")
	for _, p := range positions {
		fmt.Fprintf(w, "\n%s\n  Quantity:   %d\n  Avg price:  $%.2f\n  Invested:   $%.2f\n",
			p.Ticker, p.Quantity, p.AvgPrice, p.TotalCost)
	}
	return nil
}

func cmdTools(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("load tool catalog: %w", err)
	}

	w := cmd.Root().Writer
	fmt.Fprintf(w, "Tool catalog %s\n", catalog.Version())
	for _, def := range catalog.Definitions() {
		fmt.Fprintf(w, "  %-24s %s\n", def.Name, def.Description)
	}
	return nil
}
