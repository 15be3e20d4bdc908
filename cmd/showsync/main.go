package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"showsync/internal/config"
	"showsync/internal/importer"
	appLog "showsync/internal/log"
	"showsync/internal/normalize"
	"showsync/internal/scheduler"
	"showsync/internal/store"
	"showsync/internal/supervisor"
	"showsync/internal/tuxedo"
	"showsync/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	// A missing .env is the normal case outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Warn("failed to read .env", "error", err.Error())
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := appLog.Init(appLog.Config{
		Level:    conf.Logging.Level,
		Format:   conf.Logging.Format,
		Dir:      conf.Logging.Dir,
		MaxFiles: conf.Logging.MaxFiles,
	}); err != nil {
		appLog.Error("failed to open log dir, logging to stderr only", err, "dir", conf.Logging.Dir)
	}
	defer appLog.Close()

	appLog.Info("showsync starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Import.Timezone,
		"locale", conf.Import.Locale,
		"refresh", conf.Import.Refresh,
		"active", conf.Tuxedo.Active,
		"storage", conf.Storage.Path,
		"once", flags.once,
	)

	holder := config.NewHolder(flags.configPath, conf)

	st, err := store.OpenBadger(store.Options{Path: conf.Storage.Path, InMemory: conf.Storage.InMemory})
	if err != nil {
		appLog.Error("failed to open store", err, "path", conf.Storage.Path)
		return 1
	}
	defer st.Close()

	norm, err := normalize.New(conf.Import.Timezone, conf.Import.Locale)
	if err != nil {
		appLog.Error("invalid timezone or locale", err)
		return 1
	}

	client, err := tuxedo.NewClient(conf.Tuxedo.BaseURI, conf.TuxedoTimeout())
	if err != nil {
		appLog.Error("invalid provider base uri", err, "base_uri", conf.Tuxedo.BaseURI)
		return 1
	}
	api := tuxedo.NewBreakerClient(client, tuxedo.BreakerConfig{})
	shows := tuxedo.NewShowCache(api, holder.Credentials, 5*time.Minute)

	ring := appLog.NewRing(200)
	sink := appLog.Tee(appLog.Std(), ring)

	imp, err := importer.New(api, holder, st, st, norm, sink, importer.Config{RunTimeout: conf.RunTimeout()})
	if err != nil {
		appLog.Error("failed to build importer", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		sum, err := imp.Run(ctx)
		if err != nil {
			appLog.Error("import failed", err, "state", sum.State)
			return 1
		}
		return 0
	}

	sched, err := scheduler.New(imp, conf.Import.Refresh, norm.Location(), holder.Active, sink)
	if err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.Import.Refresh)
		return 1
	}

	holder.OnChange(func(c config.Config) {
		if err := sched.Reschedule(c.Import.Refresh); err != nil {
			appLog.Error("reschedule failed", err, "refresh", c.Import.Refresh)
		}
		shows.Invalidate()
	})

	srv := web.NewServer(web.Deps{
		Config:   holder,
		Importer: imp,
		Store:    st,
		Shows:    shows,
		Schedule: sched,
		Logs:     ring,
		Location: norm.Location(),
	})
	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.New(supervisor.DefaultTreeConfig())
	tree.AddJob(sched)
	tree.AddAPI(supervisor.NewHTTPService(httpServer, 10*time.Second))

	appLog.Info("http server listening", "addr", conf.Listen)
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("supervisor stopped", err)
		return 1
	}
	appLog.Info("showsync exiting")
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", config.DefaultPath, "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one import and exit")

	flag.Parse()

	return cfg
}
