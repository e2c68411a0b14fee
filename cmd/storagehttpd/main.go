// storagehttpd runs the storage server from a settings file and a response
// catalog.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	storagehttp "github.com/raniellyferreira/storage-http"
	"github.com/raniellyferreira/storage-http/config"
)

var (
	settingsPath string
	catalogPath  string
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:           "storagehttpd",
	Short:         "Serve a key/value store over a minimal HTTP protocol",
	Version:       storagehttp.VersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the settings file and the response catalog, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		settings, err := config.Load(settingsPath)
		if err != nil {
			return err
		}
		catalog, err := config.LoadCatalog(catalogPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "settings: %s (listen %s, backend %s)\n", settingsPath, settings.Addr(), backendName(settings))
		fmt.Fprintf(out, "catalog:  %s (%d templates)\n", catalogPath, catalog.Len())
		if missing := catalog.Missing(); len(missing) > 0 {
			fmt.Fprintf(out, "warning: no template for %v; these answer 500\n", missing)
		}
		return nil
	},
}

func init() {
	defSettings, defCatalog := config.DefaultPaths()

	rootCmd.PersistentFlags().StringVarP(&settingsPath, "config", "c", defSettings, "settings file")
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "messages", "m", defCatalog, "response catalog (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default from settings)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json (default from settings, else json when stderr is not a terminal)")

	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "storagehttpd:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return err
	}

	logger := newLogger(settings)
	svc, err := storagehttp.New(
		storagehttp.WithSettings(settings),
		storagehttp.WithCatalogFile(catalogPath),
		storagehttp.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		_ = svc.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := svc.Wait()
		// a loop that stops on its own must still bring the group down
		stop()
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", storagehttp.Field{Key: "addr", Value: svc.Addr()})
		return svc.Close()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(settings *config.Settings) storagehttp.Logger {
	level := settings.LogLevel
	if logLevel != "" {
		level = logLevel
	}

	format := resolveLogFormat(logFormat, settings, isTerminal(os.Stderr))
	return storagehttp.NewLogger(os.Stderr, storagehttp.ParseLogLevel(level), format)
}

// resolveLogFormat picks the flag, then an explicit log_format setting,
// then text on a terminal and JSON elsewhere
func resolveLogFormat(flag string, settings *config.Settings, tty bool) storagehttp.LogFormat {
	if flag != "" {
		return storagehttp.ParseLogFormat(flag)
	}
	if v, ok := settings.Value(config.KeyLogFormat); ok {
		return storagehttp.ParseLogFormat(v)
	}
	if tty {
		return storagehttp.LogFormatText
	}
	return storagehttp.LogFormatJSON
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func backendName(s *config.Settings) string {
	if s.StorageBackend == "" {
		return "memory"
	}
	return s.StorageBackend
}
