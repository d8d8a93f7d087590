package commands

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"time"

	"platewatch/internal/browser"
	"platewatch/internal/captcha"
	"platewatch/internal/components/chrono"
	"platewatch/internal/components/lifecycle"
	"platewatch/internal/components/telemetry"
	"platewatch/internal/config"
	"platewatch/internal/notifier"
	"platewatch/internal/plates"
	"platewatch/internal/transport"
	"platewatch/internal/workflow"
	"platewatch/pkg/restyutil"
	"platewatch/pkg/sqliteutil"
)

const shutdownTimeout = 30 * time.Second

// deps builds the components of a command from the loaded config. Every
// constructor exits the process on failure.
type deps struct {
	cfg   config.Config
	clock chrono.StandardImpl
	tel   telemetry.API

	db        *sql.DB
	artifacts *captcha.Artifacts
}

func loadDeps() *deps {
	cfg, err := config.Load(configPath)
	if err != nil {
		lifecycle.Fatal("failed to load config", err)
	}
	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		lifecycle.Fatal("failed to load timezone", err)
	}
	return &deps{
		cfg:   cfg,
		clock: clock,
		tel:   telemetry.SlogAPI{},
	}
}

// output dumps full http exchanges of a client under the resty dump dir, it
// is only enabled in verbose mode.
func (d *deps) output(name string) restyutil.InstrumentOutput {
	if !verbose || d.cfg.RestyDumpDir == "" {
		return nil
	}
	out, err := restyutil.NewFilesystemOutput(filepath.Join(d.cfg.RestyDumpDir, name))
	if err != nil {
		slog.Warn("resty dumps disabled", "client", name, "err", err)
		return nil
	}
	return out
}

func (d *deps) store() notifier.Store {
	switch d.cfg.Store.Backend {
	case "sqlite":
		db, err := sqliteutil.OpenDB(notifier.Schema, d.cfg.Store.SqlitePath)
		if err != nil {
			lifecycle.Fatal("failed to open state db", err)
		}
		d.db = db
		return notifier.NewSqliteStore(db)
	default:
		return notifier.NewFileStore(d.cfg.Store.RecordsPath, d.cfg.Store.LastSentPath)
	}
}

func (d *deps) index() plates.Index {
	index, err := plates.LoadIndex(d.cfg.Plates.ReferencePath)
	if err != nil {
		slog.Warn("distance to target will be unknown", "err", err)
		return plates.NewIndex(nil)
	}
	return index
}

func (d *deps) transport() transport.Transport {
	t := d.cfg.Transport
	if t.DryRun {
		return transport.NewLog(d.tel)
	}

	var out transport.Multi
	if t.Line.ChannelAccessToken != "" {
		out = append(out, transport.NewLine(transport.LineOptions{
			ChannelAccessToken: t.Line.ChannelAccessToken,
			Output:             d.output("line"),
		}, d.tel))
	}
	if t.Discord.BotToken != "" {
		discord, err := transport.NewDiscordBot(t.Discord.BotToken, t.Discord.ChannelIDs, d.tel)
		if err != nil {
			lifecycle.Fatal("failed to create discord session", err)
		}
		out = append(out, discord)
	}
	if t.Email.Server != "" {
		out = append(out, transport.NewEmail(t.Email, d.tel))
	}
	if len(out) == 0 {
		slog.Warn("no transport configured, notifications are only logged")
		return transport.NewLog(d.tel)
	}
	return out
}

func (d *deps) notifier() *notifier.Notifier {
	n, err := notifier.New(
		d.store(),
		d.index(),
		d.transport(),
		notifier.Options{
			Target:     d.cfg.Plates.Target,
			MaxRecords: d.cfg.Store.MaxRecords,
		},
		d.tel,
	)
	if err != nil {
		lifecycle.Fatal("failed to create notifier", err)
	}
	return n
}

func (d *deps) browser() *browser.Manager {
	launcher := browser.NewChromeLauncher(d.cfg.ChromeOptions(), d.tel)
	return browser.NewManager(launcher, d.cfg.Browser.MaxUsage, d.tel)
}

func (d *deps) solver() captcha.Solver {
	timeout, _ := d.cfg.OperationTimeout()
	ocr := captcha.NewOCRClient(captcha.OCRClientOptions{
		URL:     d.cfg.Captcha.OcrURL,
		Timeout: timeout,
		Output:  d.output("ocr"),
	}, d.tel)
	d.artifacts = captcha.NewArtifacts(d.cfg.Captcha.ArtifactsDir, d.tel)
	return captcha.NewSolver(ocr, d.cfg.Policy(), d.artifacts)
}

func (d *deps) runner(manager *browser.Manager, recorder workflow.Recorder) *workflow.Runner {
	timeout, _ := d.cfg.OperationTimeout()
	wf, err := workflow.New(manager, d.solver(), d.clock, workflow.Config{
		FormURL:          d.cfg.Workflow.FormURL,
		CaptchaAttempts:  d.cfg.Captcha.MaxAttempts,
		OperationTimeout: timeout,
	}, d.tel)
	if err != nil {
		lifecycle.Fatal("failed to create workflow", err)
	}

	delay, _ := d.cfg.RetryDelay()
	runner, err := workflow.NewRunner(wf, recorder, workflow.RunnerOptions{
		RetryDelay: delay,
		Clock:      d.clock,
	}, d.tel)
	if err != nil {
		lifecycle.Fatal("failed to create runner", err)
	}
	return runner
}

// close releases what the constructors opened, for the one shot commands.
func (d *deps) close(manager *browser.Manager) {
	if manager != nil {
		err := manager.Shutdown()
		if err != nil {
			slog.Warn("failed to close browser", "err", err)
		}
	}
	err := d.artifacts.Cleanup()
	if err != nil {
		slog.Warn("failed to remove captcha artifacts", "err", err)
	}
	if d.db != nil {
		d.db.Close()
	}
}
