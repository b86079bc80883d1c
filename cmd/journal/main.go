package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/photosync/journal/internal/app"
	"github.com/photosync/journal/internal/config"
	"github.com/photosync/journal/internal/observability"
)

// Version is injected at build time
var Version = "dev"

type settings struct {
	configPath string
	debug      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, app.Describe(err))
		os.Exit(1)
	}
}

// rootCommand creates the journal command tree
func rootCommand() *cobra.Command {
	s := &settings{}

	rootCmd := &cobra.Command{
		Use:           "journal",
		Short:         "Photo journal command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := observability.LevelWarn
			if s.debug {
				level = observability.LevelDebug
			}
			observability.GetLogger().SetLevel(level)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&s.configPath, "config", "c", "", "Path to the JSON configuration file (default $CONFIG_PATH or journal.json)")
	rootCmd.PersistentFlags().BoolVarP(&s.debug, "debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(
		statusCommand(s),
		loginCommand(s),
		registerCommand(s),
		logoutCommand(s),
		listCommand(s),
		captureCommand(s),
		deleteCommand(s),
		showCommand(s),
		mapCommand(s),
		calendarCommand(s),
	)

	return rootCmd
}

// withApp opens the data layer for one command run
func withApp(cmd *cobra.Command, s *settings, fn func(ctx context.Context, a *app.App) error) error {
	var (
		cfg *config.Config
		err error
	)
	if s.configPath != "" {
		cfg, err = config.LoadFile(s.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	telemetry, err := observability.InitTelemetry(ctx, observability.NewTelemetryConfig("photo-journal-cli", Version))
	if err == nil {
		defer telemetry.Shutdown(context.WithoutCancel(ctx))
	}

	a, err := app.Open(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
