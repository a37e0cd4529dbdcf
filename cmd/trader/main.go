package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gregtusar/ritarb/api"
	"github.com/gregtusar/ritarb/internal/config"
	"github.com/gregtusar/ritarb/internal/journal"
	"github.com/gregtusar/ritarb/pkg/execution"
	"github.com/gregtusar/ritarb/pkg/ledger"
	"github.com/gregtusar/ritarb/pkg/options"
	"github.com/gregtusar/ritarb/pkg/rit"
	"github.com/gregtusar/ritarb/pkg/trader"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	once    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rit-trader",
		Short: "RIT simulated-exchange trading engine",
		Long:  `Runs cash/ETF arbitrage or volatility arbitrage against the RIT Client REST API`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&once, "once", false, "run a single cycle, print the report and exit")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "arb",
			Short: "Trade the composite against its basket",
			RunE:  runArb,
		},
		&cobra.Command{
			Use:   "vol",
			Short: "Trade option implied volatility against the news-derived forecast",
			RunE:  runVol,
		},
		&cobra.Command{
			Use:   "news",
			Short: "Print the volatility signals parsed from venue news",
			RunE:  runNews,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

type env struct {
	cfg    *config.Config
	logger *logrus.Logger
	client *rit.Client
	auth   rit.Authenticator
	slicer *execution.Slicer
	closer func()
}

func setup() (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	auth, err := newAuthenticator(cfg.Venue)
	if err != nil {
		closeLog()
		return nil, err
	}

	client := rit.NewClient(cfg.RITConfig(), auth, logger)
	return &env{
		cfg:    cfg,
		logger: logger,
		client: client,
		auth:   auth,
		slicer: execution.NewSlicer(client, cfg.ClipTable(), logger),
		closer: closeLog,
	}, nil
}

func newLogger(cfg config.LoggingConfig) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File == "" {
		return logger, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return logger, func() { f.Close() }, nil
}

func newAuthenticator(cfg config.VenueConfig) (rit.Authenticator, error) {
	if cfg.AuthType == string(rit.AuthTypeJWT) {
		auth, err := rit.NewJWTAuthenticator(cfg.JWTKeyName, cfg.JWTIssuer, cfg.JWTPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create JWT authenticator: %w", err)
		}
		return auth, nil
	}
	return rit.NewAPIKeyAuthenticator(cfg.APIKey), nil
}

func runArb(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.closer()

	params := e.cfg.ArbParams()
	var closer ledger.Closer = ledger.NewMarketCloser(e.slicer)
	if e.cfg.Trading.Closer == "conversion" {
		closer = ledger.NewConversionCloser(e.client, e.slicer, params.Universe.Composite, params.Universe.Legs)
	}
	l := ledger.New(closer, e.cfg.MeanReversion(), e.logger)

	strategy := trader.NewArbTrader(params, e.cfg.ArbLimits(), e.slicer, l, e.logger)
	return run(cmd.Context(), e, strategy, nil)
}

func runVol(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.closer()

	strategy := trader.NewVolTrader(
		e.cfg.VolParams(),
		e.cfg.OptionLimits(),
		options.NewNewtonSolver(),
		e.cfg.Kelly(),
		e.slicer,
		e.logger,
	)
	return run(cmd.Context(), e, strategy, e.client)
}

func runNews(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.closer()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	items, err := e.client.GetNews(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch news: %w", err)
	}
	for _, it := range items {
		fmt.Printf("%d\t%d\t%s\n", it.ID, it.Tick, it.Headline)
	}
	signals, err := e.client.NewsVolatilities(ctx)
	if err != nil {
		return err
	}
	for _, s := range signals {
		fmt.Println(strconv.FormatFloat(s, 'f', 4, 64))
	}
	return nil
}

// run drives strategy until SIGINT/SIGTERM. news may be nil for strategies
// that ignore news signals.
func run(parent context.Context, e *env, strategy trader.Strategy, news trader.NewsSource) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var market trader.MarketData = e.client
	if e.cfg.Venue.StreamURL != "" {
		stream := rit.NewQuoteStream(e.cfg.Venue.StreamURL, e.auth, e.cfg.Venue.StaleAfter, e.logger)
		if err := stream.Connect(ctx); err != nil {
			e.logger.WithError(err).Warn("Quote stream unavailable, polling REST snapshots until it connects")
			stream.Start(ctx)
		}
		defer stream.Close()
		market = rit.NewFallback(stream, e.client, e.logger)
	}

	var recorder trader.Recorder
	if e.cfg.Database.DSN != "" {
		store, err := journal.Open(e.cfg.Database.DSN, e.logger)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	runner := trader.NewRunner(strategy, market, news, recorder, e.cfg.Trading.Interval, e.logger)

	if once {
		report := runner.Step(ctx)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start trader: %w", err)
	}

	var apiServer *api.Server
	if e.cfg.Server.Enabled {
		apiServer = api.NewServer(runner, e.logger, strconv.Itoa(e.cfg.Server.Port))
		go func() {
			if err := apiServer.Start(); err != nil {
				e.logger.WithError(err).Error("API server stopped")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	e.logger.WithField("strategy", strategy.Name()).Info("Trader is running. Press Ctrl+C to stop.")

	<-sigChan
	e.logger.Info("Received shutdown signal")

	runner.Stop()
	if apiServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			e.logger.WithError(err).Warn("API server shutdown")
		}
	}
	cancel()

	e.logger.WithField("cycles", runner.Cycles()).Info("Trader stopped")
	return nil
}
