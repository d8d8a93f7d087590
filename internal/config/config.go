package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"platewatch/internal/browser"
	"platewatch/internal/captcha"
	"platewatch/internal/components/chrono"
	"platewatch/internal/notifier"
	"platewatch/internal/plates"
	"platewatch/internal/scheduler"
	"platewatch/internal/transport"
	"platewatch/internal/workflow"
	"platewatch/lib/configutil"
)

const DefaultPath = "config.json5"

type WindowConfig struct {
	// Hours is an inclusive hour range like "7-22".
	Hours    string `json:"hours"`
	Interval string `json:"interval"`
	// Start is one of the Start* modes and decides what happens when the
	// window opens.
	Start string `json:"start"`
}

const (
	// StartImmediate runs at once, then every interval.
	StartImmediate = "immediate"
	// StartInterval waits one interval before the first run.
	StartInterval = "interval"
	// StartTopOfHour waits for the next top of the hour.
	StartTopOfHour = "top-of-hour"
	// StartImmediateTopOfHour runs at once, then periodically from the next
	// top of the hour.
	StartImmediateTopOfHour = "immediate+top-of-hour"
)

type BrowserConfig struct {
	// Headful shows the browser window, useful when debugging selectors.
	Headful          bool   `json:"headful"`
	ExecPath         string `json:"exec_path"`
	UserAgent        string `json:"user_agent"`
	MaxUsage         int    `json:"max_usage"`
	OperationTimeout string `json:"operation_timeout"`
}

type CaptchaConfig struct {
	OcrURL         string  `json:"ocr_url"`
	MinConfidence  float64 `json:"min_confidence"`
	ExpectedLength int     `json:"expected_length"`
	MaxAttempts    int     `json:"max_attempts"`
	// ArtifactsDir keeps the latest challenge image, empty disables it.
	ArtifactsDir string `json:"artifacts_dir"`
}

type WorkflowConfig struct {
	FormURL    string `json:"form_url"`
	RetryDelay string `json:"retry_delay"`
}

type PlatesConfig struct {
	// ReferencePath is the JSON array of every plate still to be issued.
	ReferencePath string `json:"reference_path"`
	Target        string `json:"target"`
	Prefix        string `json:"prefix"`
}

type StoreConfig struct {
	// Backend is "file" or "sqlite".
	Backend      string `json:"backend"`
	RecordsPath  string `json:"records_path"`
	LastSentPath string `json:"last_sent_path"`
	SqlitePath   string `json:"sqlite_path"`
	MaxRecords   int    `json:"max_records"`
}

type LineConfig struct {
	ChannelAccessToken string `json:"channel_access_token"`
}

type DiscordConfig struct {
	BotToken string `json:"bot_token"`
	// ChannelIDs is a comma separated list.
	ChannelIDs string `json:"channel_ids"`
}

type TransportConfig struct {
	Line    LineConfig           `json:"line"`
	Discord DiscordConfig        `json:"discord"`
	Email   transport.SmtpConfig `json:"email"`
	// DryRun only logs notifications.
	DryRun bool `json:"dry_run"`
}

type Config struct {
	Timezone  string          `json:"timezone"`
	Scrape    WindowConfig    `json:"scrape"`
	Notify    WindowConfig    `json:"notify"`
	Browser   BrowserConfig   `json:"browser"`
	Captcha   CaptchaConfig   `json:"captcha"`
	Workflow  WorkflowConfig  `json:"workflow"`
	Plates    PlatesConfig    `json:"plates"`
	Store     StoreConfig     `json:"store"`
	Transport TransportConfig `json:"transport"`
	// RestyDumpDir receives full http exchanges in verbose mode.
	RestyDumpDir string `json:"resty_dump_dir"`
}

func Defaults() Config {
	return Config{
		Timezone: chrono.DefaultLocation,
		Scrape: WindowConfig{
			Hours:    "7-22",
			Interval: "15s",
			Start:    StartImmediate,
		},
		Notify: WindowConfig{
			Hours:    "9-23",
			Interval: "60s",
			Start:    StartImmediate,
		},
		Browser: BrowserConfig{
			MaxUsage:         browser.DefaultMaxUsage,
			OperationTimeout: "60s",
		},
		Captcha: CaptchaConfig{
			OcrURL:         captcha.DefaultOCRURL,
			MinConfidence:  captcha.DefaultMinConfidence,
			ExpectedLength: captcha.DefaultExpectedLength,
			MaxAttempts:    captcha.DefaultMaxAttempts,
			ArtifactsDir:   ".dev/captcha",
		},
		Workflow: WorkflowConfig{
			FormURL:    workflow.DefaultFormURL,
			RetryDelay: "15s",
		},
		Plates: PlatesConfig{
			ReferencePath: "notfound/notfound-all.json",
			Target:        plates.DefaultTarget,
			Prefix:        plates.DefaultPrefix,
		},
		Store: StoreConfig{
			Backend:      "file",
			RecordsPath:  notifier.DefaultRecordsPath,
			LastSentPath: notifier.DefaultLastSentPath,
			SqlitePath:   "state/platewatch.db",
			MaxRecords:   notifier.DefaultMaxRecords,
		},
		RestyDumpDir: ".dev/resty",
	}
}

// Load reads .env, then the config file over the defaults, then the
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	err := configutil.LoadDotenv(".env")
	if err != nil {
		return Config{}, err
	}
	config, err := configutil.ReadWithDefaults(path, Defaults())
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	err = config.applyEnv()
	if err != nil {
		return Config{}, err
	}
	err = config.Validate()
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	configutil.EnvString(&c.Timezone, "PLATEWATCH_TIMEZONE")
	configutil.EnvString(&c.Captcha.OcrURL, "OCR_API_URL")
	configutil.EnvString(&c.Transport.Line.ChannelAccessToken, "CHANNEL_ACCESS_TOKEN")
	configutil.EnvString(&c.Transport.Discord.BotToken, "DISCORD_BOT_TOKEN")
	configutil.EnvString(&c.Transport.Discord.ChannelIDs, "DISCORD_CHANNEL_IDS")
	return configutil.EnvFloat(&c.Captcha.MinConfidence, "OCR_MIN_CONFIDENCE")
}

func (c Config) Validate() error {
	_, err := c.ScrapeWindow()
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	_, err = c.NotifyWindow()
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	_, err = c.OperationTimeout()
	if err != nil {
		return err
	}
	_, err = c.RetryDelay()
	if err != nil {
		return err
	}
	if c.Captcha.MinConfidence < 0 || c.Captcha.MinConfidence > 1 {
		return fmt.Errorf("captcha min_confidence %v is not in [0, 1]", c.Captcha.MinConfidence)
	}
	switch c.Store.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

func (c Config) ScrapeWindow() (scheduler.Window, error) {
	return c.Scrape.Window()
}

func (c Config) NotifyWindow() (scheduler.Window, error) {
	return c.Notify.Window()
}

func (c Config) OperationTimeout() (time.Duration, error) {
	return parseDuration("browser.operation_timeout", c.Browser.OperationTimeout)
}

func (c Config) RetryDelay() (time.Duration, error) {
	return parseDuration("workflow.retry_delay", c.Workflow.RetryDelay)
}

func (c Config) Policy() captcha.Policy {
	return captcha.Policy{
		MinConfidence:  c.Captcha.MinConfidence,
		ExpectedLength: c.Captcha.ExpectedLength,
	}
}

func (c Config) ChromeOptions() browser.ChromeOptions {
	opts := browser.DefaultChromeOptions()
	opts.Headless = !c.Browser.Headful
	opts.ExecPath = c.Browser.ExecPath
	if c.Browser.UserAgent != "" {
		opts.UserAgent = c.Browser.UserAgent
	}
	timeout, err := c.OperationTimeout()
	if err == nil {
		opts.OperationTimeout = timeout
	}
	return opts
}

func (w WindowConfig) Window() (scheduler.Window, error) {
	start, end, err := parseHours(w.Hours)
	if err != nil {
		return scheduler.Window{}, err
	}
	interval, err := parseDuration("interval", w.Interval)
	if err != nil {
		return scheduler.Window{}, err
	}
	window := scheduler.Window{
		StartHour: start,
		EndHour:   end,
		Interval:  interval,
	}
	switch w.Start {
	case StartImmediate:
		window.Immediate = true
	case StartInterval:
	case StartTopOfHour:
		window.AlignToTop = true
	case StartImmediateTopOfHour:
		window.Immediate = true
		window.AlignToTop = true
	default:
		return scheduler.Window{}, fmt.Errorf("unknown start mode %q", w.Start)
	}
	return window, window.Validate()
}

func parseHours(s string) (int, int, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("hours %q: expected <start>-<end>", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return 0, 0, fmt.Errorf("hours %q: %w", s, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return 0, 0, fmt.Errorf("hours %q: %w", s, err)
	}
	return start, end, nil
}

func parseDuration(name, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
