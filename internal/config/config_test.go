package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"platewatch/internal/scheduler"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	config := Defaults()
	require.NoError(t, config.Validate())

	scrape, err := config.ScrapeWindow()
	require.NoError(t, err)
	require.Equal(t, scheduler.Window{StartHour: 7, EndHour: 22, Interval: 15 * time.Second, Immediate: true}, scrape)

	notify, err := config.NotifyWindow()
	require.NoError(t, err)
	require.Equal(t, scheduler.Window{StartHour: 9, EndHour: 23, Interval: time.Minute, Immediate: true}, notify)

	require.Equal(t, 0.7, config.Policy().MinConfidence)
	require.Equal(t, 4, config.Policy().ExpectedLength)
	require.True(t, config.ChromeOptions().Headless)
	require.Equal(t, 60*time.Second, config.ChromeOptions().OperationTimeout)
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		scrape: { hours: "8-20", start: "interval" },
		plates: { target: "CAT-3010" },
		store: { backend: "sqlite" },
	}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		scrape: { interval: "30s" },
	}`), 0644))
	t.Setenv("OCR_API_URL", "http://ocr.internal/ocr")
	t.Setenv("OCR_MIN_CONFIDENCE", "0.85")
	t.Setenv("CHANNEL_ACCESS_TOKEN", "token")

	config, err := Load("config.json5")
	require.NoError(t, err)

	scrape, err := config.ScrapeWindow()
	require.NoError(t, err)
	require.Equal(t, scheduler.Window{StartHour: 8, EndHour: 20, Interval: 30 * time.Second}, scrape)

	require.Equal(t, "CAT-3010", config.Plates.Target)
	require.Equal(t, "CAT", config.Plates.Prefix)
	require.Equal(t, "sqlite", config.Store.Backend)
	require.Equal(t, "http://ocr.internal/ocr", config.Captcha.OcrURL)
	require.Equal(t, 0.85, config.Captcha.MinConfidence)
	require.Equal(t, "token", config.Transport.Line.ChannelAccessToken)
}

func TestValidate(t *testing.T) {
	table := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "reversed hours", mutate: func(c *Config) { c.Scrape.Hours = "22-7" }},
		{name: "hour out of range", mutate: func(c *Config) { c.Notify.Hours = "9-24" }},
		{name: "malformed hours", mutate: func(c *Config) { c.Scrape.Hours = "7 to 22" }},
		{name: "bad interval", mutate: func(c *Config) { c.Scrape.Interval = "often" }},
		{name: "zero interval", mutate: func(c *Config) { c.Notify.Interval = "0s" }},
		{name: "confidence above one", mutate: func(c *Config) { c.Captcha.MinConfidence = 1.5 }},
		{name: "unknown start", mutate: func(c *Config) { c.Scrape.Start = "whenever" }},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "redis" }},
		{name: "bad timeout", mutate: func(c *Config) { c.Browser.OperationTimeout = "1 minute" }},
	}

	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			config := Defaults()
			row.mutate(&config)
			require.Error(t, config.Validate())
		})
	}
}
