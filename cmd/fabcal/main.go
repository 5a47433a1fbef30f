package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"fabcal/internal/config"
	appLog "fabcal/internal/log"
	"fabcal/internal/pipeline"
)

type flagConfig struct {
	configPath string
	once       bool
	output     string
	logLevel   string
}

func main() {
	appLog.Info("fabcal starting", "version", "0.1.0")

	flags := parseFlags()
	appLog.SetLevel(appLog.ParseLevel(flags.logLevel))

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --output overrides the config file path if provided.
	if flags.output != "" {
		conf.OutputPath = flags.output
	}

	appLog.Info("effective config",
		"mode", conf.Mode,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"feed_count", len(conf.Feeds),
		"output", conf.OutputPath,
		"once", flags.once,
	)

	p, err := pipeline.New(conf)
	if err != nil {
		appLog.Error("failed to build pipeline", err)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		if err := p.Execute(ctx); err != nil {
			appLog.Error("aggregation run failed", err)
			os.Exit(1)
		}
		appLog.Info("fabcal exiting")
		return
	}

	// Scheduled mode: run immediately, then on the configured cron spec.
	if err := p.Execute(ctx); err != nil {
		appLog.Error("initial aggregation run failed", err)
	}

	c := cron.New()
	_, err = c.AddFunc(conf.RefreshCron, func() {
		if err := p.Execute(ctx); err != nil {
			appLog.Error("scheduled aggregation run failed", err)
		}
	})
	if err != nil {
		appLog.Error("invalid refresh cron spec", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()

	<-ctx.Done()
	c.Stop()
	appLog.Info("fabcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/fabcal/config.yaml", "Path to config file")
	flag.BoolVar(&cfg.once, "once", false, "Run one aggregation cycle and exit")
	flag.StringVar(&cfg.output, "output", "", "ICS output path (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, error")

	flag.Parse()

	return cfg
}
