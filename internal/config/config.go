package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gregtusar/ritarb/pkg/edge"
	"github.com/gregtusar/ritarb/pkg/execution"
	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/gregtusar/ritarb/pkg/risk"
	"github.com/gregtusar/ritarb/pkg/rit"
	"github.com/gregtusar/ritarb/pkg/secrets"
	"github.com/gregtusar/ritarb/pkg/sizing"
	"github.com/gregtusar/ritarb/pkg/trader"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Venue       VenueConfig       `mapstructure:"venue"`
	Trading     TradingConfig     `mapstructure:"trading"`
	Instruments InstrumentsConfig `mapstructure:"instruments"`
	Arbitrage   ArbitrageConfig   `mapstructure:"arbitrage"`
	Volatility  VolatilityConfig  `mapstructure:"volatility"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Clips       ClipsConfig       `mapstructure:"clips"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	GCP         GCPConfig         `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type VenueConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	StreamURL         string        `mapstructure:"stream_url"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`

	// AuthType is "api_key" or "jwt".
	AuthType      string `mapstructure:"auth_type"`
	APIKey        string `mapstructure:"api_key"`
	JWTKeyName    string `mapstructure:"jwt_key_name"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
	JWTPrivateKey string `mapstructure:"jwt_private_key"`

	CreationLease   string `mapstructure:"creation_lease"`
	RedemptionLease string `mapstructure:"redemption_lease"`
}

type TradingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// Closer is "market" or "conversion".
	Closer string `mapstructure:"closer"`
}

type InstrumentsConfig struct {
	Classes map[string]string `mapstructure:"classes"`
}

type ArbitrageConfig struct {
	Legs           []string `mapstructure:"legs"`
	Composite      string   `mapstructure:"composite"`
	FX             string   `mapstructure:"fx"`
	OrderQty       int      `mapstructure:"order_qty"`
	EntryThreshold float64  `mapstructure:"entry_threshold"`
	MeanReversion  float64  `mapstructure:"mean_reversion"`
	HedgeFX        bool     `mapstructure:"hedge_fx"`
}

type VolatilityConfig struct {
	Underlying           string                  `mapstructure:"underlying"`
	Contracts            []models.OptionContract `mapstructure:"contracts"`
	Rate                 float64                 `mapstructure:"rate"`
	TicksPerYear         float64                 `mapstructure:"ticks_per_year"`
	DecisionBand         float64                 `mapstructure:"decision_band"`
	DefaultUnderlyingVol float64                 `mapstructure:"default_underlying_vol"`
	HedgeTolerance       int                     `mapstructure:"hedge_tolerance"`
	KellySafety          float64                 `mapstructure:"kelly_safety"`
	WinBaseStdDev        float64                 `mapstructure:"win_base_std_dev"`
	WinVolCap            float64                 `mapstructure:"win_vol_cap"`
}

type LimitsConfig struct {
	ArbMaxGross int `mapstructure:"arb_max_gross"`
	ArbMaxNet   int `mapstructure:"arb_max_net"`
	ArbMinNet   int `mapstructure:"arb_min_net"`
	OptGross    int `mapstructure:"opt_gross"`
	OptNet      int `mapstructure:"opt_net"`
	OptDelta    int `mapstructure:"opt_delta"`
	Stock       int `mapstructure:"stock"`
}

type ClipsConfig struct {
	Equity     int            `mapstructure:"equity"`
	Currency   int            `mapstructure:"currency"`
	Option     int            `mapstructure:"option"`
	Conversion int            `mapstructure:"conversion"`
	Overrides  map[string]int `mapstructure:"overrides"`
}

type DatabaseConfig struct {
	// DSN is a postgres:// URL or a sqlite path. Empty disables the journal.
	DSN string `mapstructure:"dsn"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/rit-trader")
	}

	v.SetEnvPrefix("RIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)
	if len(config.Volatility.Contracts) == 0 {
		config.Volatility.Contracts = defaultContracts(config.Volatility.Underlying)
	}

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.enabled", true)

	v.SetDefault("venue.base_url", "http://localhost:9999")
	v.SetDefault("venue.stream_url", "")
	v.SetDefault("venue.stale_after", "2s")
	v.SetDefault("venue.timeout", "5s")
	v.SetDefault("venue.requests_per_second", 20)
	v.SetDefault("venue.burst", 5)
	v.SetDefault("venue.auth_type", string(rit.AuthTypeAPIKey))
	v.SetDefault("venue.jwt_issuer", "rit-trader")
	v.SetDefault("venue.creation_lease", "ETF-Creation")
	v.SetDefault("venue.redemption_lease", "ETF-Redemption")

	v.SetDefault("trading.interval", "500ms")
	v.SetDefault("trading.closer", "market")

	v.SetDefault("instruments.classes", map[string]string{
		"RITC": string(models.ClassETF),
		"USD":  string(models.ClassCurrency),
		"CAD":  string(models.ClassCurrency),
	})

	v.SetDefault("arbitrage.legs", []string{"BULL", "BEAR"})
	v.SetDefault("arbitrage.composite", "RITC")
	v.SetDefault("arbitrage.fx", "USD")
	v.SetDefault("arbitrage.order_qty", 5000)
	v.SetDefault("arbitrage.entry_threshold", 0.07)
	v.SetDefault("arbitrage.mean_reversion", 0.02)
	v.SetDefault("arbitrage.hedge_fx", false)

	v.SetDefault("volatility.underlying", "RTM")
	v.SetDefault("volatility.rate", 0.0)
	v.SetDefault("volatility.ticks_per_year", 3600)
	v.SetDefault("volatility.decision_band", 0.0)
	v.SetDefault("volatility.default_underlying_vol", 0.20)
	v.SetDefault("volatility.hedge_tolerance", 100)
	v.SetDefault("volatility.kelly_safety", 0.5)
	v.SetDefault("volatility.win_base_std_dev", 0.05)
	v.SetDefault("volatility.win_vol_cap", 0.06)

	v.SetDefault("limits.arb_max_gross", 500000)
	v.SetDefault("limits.arb_max_net", 25000)
	v.SetDefault("limits.arb_min_net", -25000)
	v.SetDefault("limits.opt_gross", 2500)
	v.SetDefault("limits.opt_net", 1000)
	v.SetDefault("limits.opt_delta", 7000)
	v.SetDefault("limits.stock", 50000)

	clips := execution.DefaultClips()
	v.SetDefault("clips.equity", clips.Equity)
	v.SetDefault("clips.currency", clips.Currency)
	v.SetDefault("clips.option", clips.Option)
	v.SetDefault("clips.conversion", clips.Conversion)

	v.SetDefault("database.dsn", "./data/rit_trader.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.api_key", secretNames.APIKey)
	v.SetDefault("gcp.secret_names.jwt_key_name", secretNames.JWTKeyName)
	v.SetDefault("gcp.secret_names.jwt_private_key", secretNames.JWTPrivateKey)
	v.SetDefault("gcp.secret_names.database_dsn", secretNames.DatabaseDSN)
}

func overrideFromEnv(config *Config) {
	if apiKey := os.Getenv("RIT_API_KEY"); apiKey != "" {
		config.Venue.APIKey = apiKey
	}
	if baseURL := os.Getenv("RIT_BASE_URL"); baseURL != "" {
		config.Venue.BaseURL = baseURL
	}
	if keyName := os.Getenv("RIT_JWT_KEY_NAME"); keyName != "" {
		config.Venue.JWTKeyName = keyName
	}
	if privateKey := os.Getenv("RIT_JWT_PRIVATE_KEY"); privateKey != "" {
		config.Venue.JWTPrivateKey = privateKey
	}
	if dsn := os.Getenv("RIT_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" && config.GCP.CredentialsFile == "" {
		config.GCP.CredentialsFile = creds
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	applySecrets(ctx, config, secretManager, logger)
	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}

// applySecrets fills credentials that are not already set.
func applySecrets(ctx context.Context, config *Config, a secrets.Accessor, logger *logrus.Logger) {
	names := config.GCP.SecretNames
	if config.Venue.APIKey == "" {
		config.Venue.APIKey = secrets.WithDefault(ctx, a, logger, names.APIKey, "")
	}
	if config.Venue.JWTKeyName == "" {
		config.Venue.JWTKeyName = secrets.WithDefault(ctx, a, logger, names.JWTKeyName, "")
	}
	if config.Venue.JWTPrivateKey == "" {
		config.Venue.JWTPrivateKey = secrets.WithDefault(ctx, a, logger, names.JWTPrivateKey, "")
	}
	config.Database.DSN = secrets.WithDefault(ctx, a, logger, names.DatabaseDSN, config.Database.DSN)
}

// Validate rejects limits and sizes the engine cannot honour.
func (c *Config) Validate() error {
	var errs []error
	if c.Trading.Interval <= 0 {
		errs = append(errs, fmt.Errorf("trading.interval must be positive"))
	}
	if c.Trading.Closer != "market" && c.Trading.Closer != "conversion" {
		errs = append(errs, fmt.Errorf("trading.closer must be market or conversion, got %q", c.Trading.Closer))
	}
	if c.Venue.AuthType != string(rit.AuthTypeAPIKey) && c.Venue.AuthType != string(rit.AuthTypeJWT) {
		errs = append(errs, fmt.Errorf("venue.auth_type must be api_key or jwt, got %q", c.Venue.AuthType))
	}
	if c.Clips.Equity <= 0 || c.Clips.Currency <= 0 || c.Clips.Option <= 0 || c.Clips.Conversion <= 0 {
		errs = append(errs, fmt.Errorf("clips must be positive"))
	}
	if c.Arbitrage.OrderQty <= 0 {
		errs = append(errs, fmt.Errorf("arbitrage.order_qty must be positive"))
	}
	if c.Arbitrage.EntryThreshold <= c.Arbitrage.MeanReversion {
		errs = append(errs, fmt.Errorf("arbitrage.entry_threshold must exceed arbitrage.mean_reversion"))
	}
	if c.Limits.ArbMinNet >= c.Limits.ArbMaxNet {
		errs = append(errs, fmt.Errorf("limits.arb_min_net must be below limits.arb_max_net"))
	}
	if c.Limits.ArbMaxGross <= 0 || c.Limits.OptGross <= 0 || c.Limits.OptNet <= 0 || c.Limits.OptDelta <= 0 || c.Limits.Stock <= 0 {
		errs = append(errs, fmt.Errorf("gross, net, delta and stock limits must be positive"))
	}
	if c.Volatility.KellySafety <= 0 || c.Volatility.KellySafety > 1 {
		errs = append(errs, fmt.Errorf("volatility.kelly_safety must be in (0, 1], got %g", c.Volatility.KellySafety))
	}
	if c.Volatility.TicksPerYear <= 0 {
		errs = append(errs, fmt.Errorf("volatility.ticks_per_year must be positive"))
	}
	for _, oc := range c.Volatility.Contracts {
		if oc.Strike <= 0 || oc.Multiplier <= 0 {
			errs = append(errs, fmt.Errorf("option %s needs a positive strike and multiplier", oc.Ticker))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) ArbParams() trader.ArbParams {
	return trader.ArbParams{
		Universe: edge.Universe{
			Legs:      c.Arbitrage.Legs,
			Composite: c.Arbitrage.Composite,
			FX:        c.Arbitrage.FX,
		},
		OrderQty:       c.Arbitrage.OrderQty,
		EntryThreshold: decimal.NewFromFloat(c.Arbitrage.EntryThreshold),
		HedgeFX:        c.Arbitrage.HedgeFX,
	}
}

func (c *Config) MeanReversion() decimal.Decimal {
	return decimal.NewFromFloat(c.Arbitrage.MeanReversion)
}

func (c *Config) VolParams() trader.VolParams {
	return trader.VolParams{
		Underlying:           c.Volatility.Underlying,
		Contracts:            c.Volatility.Contracts,
		Rate:                 c.Volatility.Rate,
		TicksPerYear:         c.Volatility.TicksPerYear,
		DecisionBand:         c.Volatility.DecisionBand,
		DefaultUnderlyingVol: c.Volatility.DefaultUnderlyingVol,
		HedgeTolerance:       c.Volatility.HedgeTolerance,
	}
}

func (c *Config) Kelly() *sizing.Kelly {
	win := sizing.DefaultWinModel()
	if c.Volatility.WinBaseStdDev > 0 {
		win.BaseStdDev = c.Volatility.WinBaseStdDev
	}
	if c.Volatility.WinVolCap > 0 {
		win.VolCap = c.Volatility.WinVolCap
	}
	return sizing.NewKelly(win, c.Volatility.KellySafety)
}

func (c *Config) ArbLimits() risk.ArbLimits {
	tickers := append(append([]string{}, c.Arbitrage.Legs...), c.Arbitrage.Composite)
	return risk.ArbLimits{
		Tickers:  tickers,
		MaxGross: c.Limits.ArbMaxGross,
		MaxNet:   c.Limits.ArbMaxNet,
		MinNet:   c.Limits.ArbMinNet,
	}
}

func (c *Config) OptionLimits() risk.OptionLimits {
	return risk.OptionLimits{
		Gross: c.Limits.OptGross,
		Net:   c.Limits.OptNet,
		Delta: c.Limits.OptDelta,
		Stock: c.Limits.Stock,
	}
}

// ClipTable maps configured instrument classes onto the slicer's clip table.
// Option contracts are always classed as options. Viper lowercases map keys
// read from files, so tickers are restored to upper case.
func (c *Config) ClipTable() execution.Clips {
	classes := make(map[string]models.InstrumentClass, len(c.Instruments.Classes)+len(c.Volatility.Contracts))
	for t, cls := range c.Instruments.Classes {
		classes[strings.ToUpper(t)] = models.InstrumentClass(cls)
	}
	for _, oc := range c.Volatility.Contracts {
		classes[oc.Ticker] = models.ClassOption
	}
	overrides := make(map[string]int, len(c.Clips.Overrides))
	for t, n := range c.Clips.Overrides {
		overrides[strings.ToUpper(t)] = n
	}
	return execution.Clips{
		Equity:     c.Clips.Equity,
		Currency:   c.Clips.Currency,
		Option:     c.Clips.Option,
		Conversion: c.Clips.Conversion,
		Classes:    classes,
		Overrides:  overrides,
	}
}

func (c *Config) RITConfig() rit.Config {
	return rit.Config{
		BaseURL:           c.Venue.BaseURL,
		Timeout:           c.Venue.Timeout,
		RequestsPerSecond: c.Venue.RequestsPerSecond,
		Burst:             c.Venue.Burst,
		Conversion: rit.Conversion{
			Creation:   c.Venue.CreationLease,
			Redemption: c.Venue.RedemptionLease,
			Legs:       c.Arbitrage.Legs,
		},
	}
}

// defaultContracts lists the one-month 45..55 calls and puts the RIT
// volatility case trades.
func defaultContracts(underlying string) []models.OptionContract {
	var out []models.OptionContract
	for strike := 45; strike <= 55; strike++ {
		for _, kind := range []models.OptionKind{models.OptionCall, models.OptionPut} {
			suffix := "C"
			if kind == models.OptionPut {
				suffix = "P"
			}
			out = append(out, models.OptionContract{
				Ticker:     fmt.Sprintf("%s%d%s", underlying, strike, suffix),
				Strike:     float64(strike),
				Kind:       kind,
				Multiplier: 100,
				ExpiryTick: 300,
			})
		}
	}
	return out
}
