// copyxd is the copyx text expansion daemon.
//
// It loads the snippet collection, keeps it fresh as the store changes and
// expands shortcuts typed in any application. On linux keys arrive through
// an IBus input method engine:
//
//	copyxd -install     Write the IBus component and restart ibus-daemon
//	copyxd -uninstall   Remove the IBus component
//	copyxd              Run in the foreground
//
// ibus-daemon starts the engine itself with -ibus once the user adds copyx
// as an input source.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"copyx/internal/clipboard"
	"copyx/internal/config"
	"copyx/internal/expander"
	"copyx/internal/ime"
	"copyx/internal/keystroke"
	"copyx/internal/logging"
	"copyx/internal/metrics"
	"copyx/internal/placeholder"
	"copyx/internal/snippet"
	"copyx/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	ibusMode := flag.Bool("ibus", false, "Run as started by ibus-daemon")
	install := flag.Bool("install", false, "Install IBus component")
	uninstall := flag.Bool("uninstall", false, "Uninstall IBus component")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config %s: %v\n", loader.Path(), err)
		os.Exit(1)
	}

	switch {
	case *install:
		exe, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error locating executable: %v\n", err)
			os.Exit(1)
		}
		path, err := ime.Install(imeConfig(cfg), exe)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Installed %s\n", path)
		fmt.Println("Add copyx as an input source in your desktop keyboard settings.")
		return

	case *uninstall:
		if err := ime.Uninstall(imeConfig(cfg)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to uninstall: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Uninstalled.")
		return
	}

	if *ibusMode && (cfg.Logging.Output == "stdout" || cfg.Logging.Output == "stderr") {
		// ibus-daemon discards the engine's standard streams.
		cfg.Logging.Output = "file"
	}

	if err := run(loader, cfg); err != nil {
		slog.Error("copyxd stopped", "error", err)
		os.Exit(1)
	}
}

func imeConfig(cfg *config.Config) ime.Config {
	c := ime.DefaultConfig()
	c.BusName = cfg.IME.BusName
	c.EngineName = cfg.IME.EngineName
	c.SkipPasswordFields = cfg.IME.SkipPasswordFields
	c.DispatchTimeout = ime.DispatchTimeoutFor(cfg.ClipboardTimeout())
	return c
}

func resolverFor(cfg *config.Config, clip placeholder.Clipboard, logger *slog.Logger) *placeholder.Resolver {
	return placeholder.New(placeholder.Options{
		Clipboard: clip,
		Layouts: placeholder.Layouts{
			Date:     cfg.Placeholders.DateLayout,
			Time:     cfg.Placeholders.TimeLayout,
			DateTime: cfg.Placeholders.DateTimeLayout,
		},
		ClipboardTimeout: cfg.ClipboardTimeout(),
		Logger:           logger,
	})
}

// applyLogLevel sets the level named by name on log. An unknown name leaves
// the level as it was.
func applyLogLevel(log *logging.Logger, name string) (logging.Level, error) {
	level, err := logging.ParseLevel(name)
	if err != nil {
		return 0, err
	}
	log.SetLevel(level)
	return level, nil
}

// unreachable lists the shortcuts in items that a buffer of maxLen runes can
// never hold.
func unreachable(items []snippet.Snippet, maxLen int) []string {
	buf := keystroke.NewBuffer(keystroke.Options{MaxLen: maxLen})
	var out []string
	for _, s := range items {
		if !buf.Fits(s.Shortcut) {
			out = append(out, s.Shortcut)
		}
	}
	return out
}

func run(loader *config.Loader, cfg *config.Config) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logCfg, err := cfg.LogConfig("copyxd")
	if err != nil {
		return err
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Storage.Type, cfg.Storage.Path, store.SQLiteOptions{
		BusyTimeout:  cfg.BusyTimeout(),
		PollInterval: cfg.PollInterval(),
		Logger:       log.WithComponent("store").Logger,
	})
	if err != nil {
		return fmt.Errorf("open snippet store: %w", err)
	}
	defer st.Close()
	if w, ok := st.(store.Watcher); ok {
		if err := w.Watch(); err != nil {
			logger.Warn("snippet file watch unavailable, changes need a restart", "error", err)
		}
	}

	m := metrics.NewExpander(nil)

	dir := snippet.NewDirectory(st, log.WithComponent("directory").Logger)
	dir.OnReload(func(count int) {
		m.DirectoryReloads.Inc()
		m.DirectorySnippets.Set(int64(count))
		for _, sc := range unreachable(dir.Snapshot(), cfg.Expander.MaxBuffer) {
			logger.Warn("shortcut longer than the keystroke buffer never expands",
				"shortcut", sc,
				"max_buffer", cfg.Expander.MaxBuffer,
			)
		}
	})
	if err := dir.Load(ctx); err != nil {
		return err
	}
	go dir.Watch(ctx, st.Changes())

	separators, err := keystroke.ParseSeparators(cfg.Expander.Separators)
	if err != nil {
		return err
	}

	var clip placeholder.Clipboard
	if clipboard.Available() {
		clip = clipboard.NewSystem()
	} else {
		logger.Warn("no system clipboard, ${clipboard} stays unresolved")
	}

	engine := expander.New(expander.Options{
		Directory: dir,
		Resolver:  resolverFor(cfg, clip, log.WithComponent("placeholder").Logger),
		Buffer: keystroke.Options{
			IdleTimeout: cfg.IdleTimeout(),
			MaxLen:      cfg.Expander.MaxBuffer,
			Separators:  separators,
		},
		Metrics: m,
		Logger:  log.WithComponent("expander").Logger,
	})
	loop := expander.NewLoop(engine, 0, log.WithComponent("loop").Logger)
	loop.Start()
	defer loop.Stop()

	loader.OnChange(func(next *config.Config) {
		engine.SetResolver(resolverFor(next, clip, log.WithComponent("placeholder").Logger))
		level, err := applyLogLevel(log, next.Logging.Level)
		if err != nil {
			logger.Warn("configuration reloaded, log level unchanged", "error", err)
			return
		}
		logger.Info("configuration reloaded",
			"log_level", logging.LevelString(level),
			"note", "storage, expander and ime changes apply on restart",
		)
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}
	defer loader.Close()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				logger.Warn("config reload rejected", "error", err)
			}
		}
	}()

	ibus := ime.NewIBusEngine(loop, imeConfig(cfg), log.WithComponent("ime").Logger)
	switch err := ibus.Start(ctx); {
	case errors.Is(err, ime.ErrUnsupported):
		logger.Warn("no input method integration on this platform; waiting for signals only")
	case err != nil:
		return err
	default:
		defer ibus.Stop()
	}

	logger.Info("copyxd started",
		"snippets", dir.Len(),
		"storage", cfg.Storage.Type,
		"config", loader.Path(),
	)
	<-ctx.Done()
	logger.Info("shutting down")

	_ = loop.Flush(context.Background())
	paths := config.GetDefaultPaths()
	if err := writeSnapshot(paths.MetricsFile, m.Registry.WriteJSON); err != nil {
		logger.Warn("could not write metrics snapshot", "error", err)
	}
	if err := writeSnapshot(paths.PrometheusFile, m.Registry.WritePrometheus); err != nil {
		logger.Warn("could not write metrics snapshot", "error", err)
	}
	return nil
}

// writeSnapshot replaces path with the output of write.
func writeSnapshot(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".metrics-*")
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}
