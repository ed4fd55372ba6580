// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Target() TargetConfig
	Scenario() ScenarioConfig
	UI() UIConfig
	Wait() WaitConfig
	Checks() ChecksConfig
	Artifacts() ArtifactsConfig
	Report() ReportConfig
	Store() StoreConfig

	// Setters used by CLI flag overrides.
	SetTargetBaseURL(string)
	SetBrowserEngine(string)
	SetBrowserHeadless(bool)
	SetReportFormat(string)
	SetReportOutput(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	TargetCfg    TargetConfig    `mapstructure:"target" yaml:"target"`
	ScenarioCfg  ScenarioConfig  `mapstructure:"scenario" yaml:"scenario"`
	UICfg        UIConfig        `mapstructure:"ui" yaml:"ui"`
	WaitCfg      WaitConfig      `mapstructure:"wait" yaml:"wait"`
	ChecksCfg    ChecksConfig    `mapstructure:"checks" yaml:"checks"`
	ArtifactsCfg ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	ReportCfg    ReportConfig    `mapstructure:"report" yaml:"report"`
	StoreCfg     StoreConfig     `mapstructure:"store" yaml:"store"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Target() TargetConfig       { return c.TargetCfg }
func (c *Config) Scenario() ScenarioConfig   { return c.ScenarioCfg }
func (c *Config) UI() UIConfig               { return c.UICfg }
func (c *Config) Wait() WaitConfig           { return c.WaitCfg }
func (c *Config) Checks() ChecksConfig       { return c.ChecksCfg }
func (c *Config) Artifacts() ArtifactsConfig { return c.ArtifactsCfg }
func (c *Config) Report() ReportConfig       { return c.ReportCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetTargetBaseURL(u string)  { c.TargetCfg.BaseURL = u }
func (c *Config) SetBrowserEngine(e string)  { c.BrowserCfg.Engine = e }
func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserCfg.Headless = b }
func (c *Config) SetReportFormat(f string)   { c.ReportCfg.Format = f }
func (c *Config) SetReportOutput(out string) { c.ReportCfg.Output = out }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported browser engines.
const (
	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
)

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Engine          string            `mapstructure:"engine" yaml:"engine" validate:"oneof=chromedp playwright"`
	Headless        bool              `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool              `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string            `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string          `mapstructure:"args" yaml:"args"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"`
	Viewport        ViewportConfig    `mapstructure:"viewport" yaml:"viewport"`
	LaunchTimeout   time.Duration     `mapstructure:"launch_timeout" yaml:"launch_timeout" validate:"gt=0"`
	ActionTimeout   time.Duration     `mapstructure:"action_timeout" yaml:"action_timeout" validate:"gt=0"`
}

// ViewportConfig is the emulated window size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width" validate:"gt=0"`
	Height int `mapstructure:"height" yaml:"height" validate:"gt=0"`
}

// TargetConfig points at the wizard under test.
type TargetConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout" validate:"gt=0"`
}

// ScenarioConfig holds the fixed inputs entered in Step 1.
// Decimal values are kept as text so the exact typed form can be checked downstream.
type ScenarioConfig struct {
	District   string `mapstructure:"district" yaml:"district" validate:"required"`
	Ada        string `mapstructure:"ada" yaml:"ada" validate:"required,numeric"`
	Parsel     string `mapstructure:"parsel" yaml:"parsel" validate:"required,numeric"`
	ParcelArea string `mapstructure:"parcel_area" yaml:"parcel_area" validate:"required"`
	TAKS       string `mapstructure:"taks" yaml:"taks" validate:"required"`
	KAKS       string `mapstructure:"kaks" yaml:"kaks" validate:"required"`
	Setback    string `mapstructure:"setback" yaml:"setback" validate:"required"`
	// Locale drives the locale-formatted renderings accepted by the continuity check.
	Locale string `mapstructure:"locale" yaml:"locale" validate:"required"`
}

// FieldLocatorConfig describes how to find one input: stable id first,
// then a CSS selector, then placeholder substrings.
type FieldLocatorConfig struct {
	ID           string   `mapstructure:"id" yaml:"id"`
	CSS          string   `mapstructure:"css" yaml:"css"`
	Placeholders []string `mapstructure:"placeholders" yaml:"placeholders"`
}

// IsEmpty reports whether no strategy is configured.
func (f FieldLocatorConfig) IsEmpty() bool {
	return f.ID == "" && f.CSS == "" && len(f.Placeholders) == 0
}

// FieldsConfig groups the Step 1 field locators.
type FieldsConfig struct {
	District   FieldLocatorConfig `mapstructure:"district" yaml:"district"`
	Ada        FieldLocatorConfig `mapstructure:"ada" yaml:"ada"`
	Parsel     FieldLocatorConfig `mapstructure:"parsel" yaml:"parsel"`
	ParcelArea FieldLocatorConfig `mapstructure:"parcel_area" yaml:"parcel_area"`
	Setback    FieldLocatorConfig `mapstructure:"setback" yaml:"setback"`
	TAKS       FieldLocatorConfig `mapstructure:"taks" yaml:"taks"`
	KAKS       FieldLocatorConfig `mapstructure:"kaks" yaml:"kaks"`
}

// StepMarkersConfig lists texts whose presence identifies each wizard step.
type StepMarkersConfig struct {
	Step2 []string `mapstructure:"step2" yaml:"step2"`
	Step3 []string `mapstructure:"step3" yaml:"step3"`
	Step4 []string `mapstructure:"step4" yaml:"step4"`
}

// UIConfig captures the labels and locators of the driven application.
type UIConfig struct {
	StartText    string            `mapstructure:"start_text" yaml:"start_text" validate:"required"`
	ProceedText  string            `mapstructure:"proceed_text" yaml:"proceed_text" validate:"required"`
	LookupText   string            `mapstructure:"lookup_text" yaml:"lookup_text"`
	ProceedLabel string            `mapstructure:"proceed_label" yaml:"proceed_label"`
	Fields       FieldsConfig      `mapstructure:"fields" yaml:"fields"`
	Steps        StepMarkersConfig `mapstructure:"steps" yaml:"steps"`
	AreaSummary  []string          `mapstructure:"area_summary" yaml:"area_summary"`
	FinancialSum []string          `mapstructure:"financial_summary" yaml:"financial_summary"`
}

// WaitConfig bounds the condition polls that replace fixed sleeps.
type WaitConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	Quiet         time.Duration `mapstructure:"quiet" yaml:"quiet" validate:"gt=0"`
	SettleTimeout time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout" validate:"gt=0"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout" yaml:"lookup_timeout" validate:"gt=0"`
	StepTimeout   time.Duration `mapstructure:"step_timeout" yaml:"step_timeout" validate:"gt=0"`
}

// ChecksConfig tunes the correctness predicates.
type ChecksConfig struct {
	// DecimalThreshold is the number of fractional digits at which a token is flagged.
	DecimalThreshold int   `mapstructure:"decimal_threshold" yaml:"decimal_threshold" validate:"gte=1"`
	ContinuitySteps  []int `mapstructure:"continuity_steps" yaml:"continuity_steps" validate:"dive,gte=2,lte=4"`
	DecimalSteps     []int `mapstructure:"decimal_steps" yaml:"decimal_steps" validate:"dive,gte=2,lte=4"`
}

// ArtifactsConfig controls where screenshots land.
type ArtifactsConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	PerRunDir   bool   `mapstructure:"per_run_dir" yaml:"per_run_dir"`
	Screenshots bool   `mapstructure:"screenshots" yaml:"screenshots"`
}

// Supported report formats.
var ReportFormats = []string{"text", "json", "sarif", "junit", "markdown"}

// ReportConfig selects the report writer.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json sarif junit markdown"`
	Output string `mapstructure:"output" yaml:"output"`
	Color  bool   `mapstructure:"color" yaml:"color"`
}

// StoreConfig enables the run history when URL is set.
type StoreConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// Enabled reports whether a history database is configured.
func (s StoreConfig) Enabled() bool { return s.URL != "" }

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wizprobe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")

	// -- Target --
	v.SetDefault("target.base_url", "http://localhost:5174/construction-forecast/")
	v.SetDefault("target.navigation_timeout", "30s")

	// -- Scenario --
	v.SetDefault("scenario.district", "kepez")
	v.SetDefault("scenario.ada", "6960")
	v.SetDefault("scenario.parsel", "4")
	v.SetDefault("scenario.parcel_area", "2146")
	v.SetDefault("scenario.taks", "0.30")
	v.SetDefault("scenario.kaks", "0.60")
	v.SetDefault("scenario.setback", "1.70")
	v.SetDefault("scenario.locale", "tr")

	// -- UI --
	v.SetDefault("ui.start_text", "Yeni Proje")
	v.SetDefault("ui.proceed_text", "Sonraki")
	v.SetDefault("ui.proceed_label", "Sonraki Adım")
	v.SetDefault("ui.lookup_text", "TKGM")
	v.SetDefault("ui.fields.district.css", "select#ilce")
	v.SetDefault("ui.fields.ada.css", "input#ada")
	v.SetDefault("ui.fields.parsel.css", "input#parsel")
	v.SetDefault("ui.fields.parcel_area.id", "parselAlani")
	v.SetDefault("ui.fields.parcel_area.placeholders", []string{"2146", "2.146"})
	v.SetDefault("ui.fields.setback.id", "cikma")
	v.SetDefault("ui.fields.setback.placeholders", []string{"1.60", "1,60"})
	v.SetDefault("ui.fields.taks.id", "taks")
	v.SetDefault("ui.fields.taks.placeholders", []string{"0.3", "0,3"})
	v.SetDefault("ui.fields.kaks.id", "kaks")
	v.SetDefault("ui.fields.kaks.placeholders", []string{"0.6", "0,6"})
	v.SetDefault("ui.steps.step2", []string{"Kullanılabilir", "Kalan"})
	v.SetDefault("ui.steps.step3", []string{"Adım 3"})
	v.SetDefault("ui.steps.step4", []string{"Adım 4", "Finansal Analiz"})
	v.SetDefault("ui.area_summary", []string{"Kullanılabilir", "Kalan"})
	v.SetDefault("ui.financial_summary", []string{"TL", "Toplam"})

	// -- Wait --
	v.SetDefault("wait.poll_interval", "100ms")
	v.SetDefault("wait.quiet", "300ms")
	v.SetDefault("wait.settle_timeout", "3s")
	v.SetDefault("wait.lookup_timeout", "10s")
	v.SetDefault("wait.step_timeout", "5s")

	// -- Checks --
	v.SetDefault("checks.decimal_threshold", 4)
	v.SetDefault("checks.continuity_steps", []int{3, 4})
	v.SetDefault("checks.decimal_steps", []int{3, 4})

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "")
	v.SetDefault("artifacts.per_run_dir", false)
	v.SetDefault("artifacts.screenshots", true)

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")
	v.SetDefault("report.color", true)

	// -- Store --
	v.SetDefault("store.url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.url", "WIZPROBE_STORE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}
	if err := c.ScenarioCfg.Validate(); err != nil {
		return fmt.Errorf("scenario configuration invalid: %w", err)
	}
	if err := c.UICfg.Validate(); err != nil {
		return fmt.Errorf("ui configuration invalid: %w", err)
	}
	if c.WaitCfg.Quiet >= c.WaitCfg.SettleTimeout {
		return fmt.Errorf("wait.quiet must be shorter than wait.settle_timeout")
	}
	return nil
}

// Validate checks that the decimal inputs parse as numbers.
func (s *ScenarioConfig) Validate() error {
	fields := []struct{ name, value string }{
		{"parcel_area", s.ParcelArea},
		{"taks", s.TAKS},
		{"kaks", s.KAKS},
		{"setback", s.Setback},
	}
	for _, f := range fields {
		normalized := strings.Replace(strings.TrimSpace(f.value), ",", ".", 1)
		if _, err := strconv.ParseFloat(normalized, 64); err != nil {
			return fmt.Errorf("%s must be a decimal number, got %q", f.name, f.value)
		}
	}
	return nil
}

// Validate checks that each field the oracle fills has at least one locator strategy.
func (u *UIConfig) Validate() error {
	fields := map[string]FieldLocatorConfig{
		"district":    u.Fields.District,
		"ada":         u.Fields.Ada,
		"parsel":      u.Fields.Parsel,
		"parcel_area": u.Fields.ParcelArea,
		"setback":     u.Fields.Setback,
		"taks":        u.Fields.TAKS,
		"kaks":        u.Fields.KAKS,
	}
	for _, name := range []string{"district", "ada", "parsel", "parcel_area", "setback", "taks", "kaks"} {
		if fields[name].IsEmpty() {
			return fmt.Errorf("fields.%s needs at least one of id, css or placeholders", name)
		}
	}
	return nil
}

// formatValidationErrors renders validator errors with config key paths,
// e.g. "browser.engine failed 'oneof' (chromedp playwright)".
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed '%s'", configKey(fe.Namespace()), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}

// configKey turns a validator namespace such as "Config.BrowserCfg.Viewport.Width"
// into the matching viper key "browser.viewport.width".
func configKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 0 && parts[0] == "Config" {
		parts = parts[1:]
	}
	for i, p := range parts {
		p = strings.TrimSuffix(p, "Cfg")
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		isUpper := r >= 'A' && r <= 'Z'
		if isUpper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || (nextLower && runes[i-1] != '[') {
				b.WriteByte('_')
			}
		}
		if isUpper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
