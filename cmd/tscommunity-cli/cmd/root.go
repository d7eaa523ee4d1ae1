package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"tscommunity/lib/scrapers/tscommunity/core"
	"tscommunity/lib/scrapers/tscommunity/errs"
	"tscommunity/lib/scrapers/tscommunity/forum"
	"tscommunity/lib/scrapers/tscommunity/session"
	"tscommunity/lib/serviceutil"
	"tscommunity/lib/telemetry"
	"tscommunity/services/tscommunity"

	"github.com/spf13/cobra"
)

var (
	configPath string
	cookieFile string
	verbose    bool
)

var client *forum.Client

var rootCmd = &cobra.Command{
	Use:   "tscommunity-cli",
	Short: "tscommunity-cli reads the TradeStation Community forum with a saved browser session.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)
		serviceutil.LoadDotEnv()

		cfg, err := tscommunity.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cookieFile != "" {
			cfg.CookieFile = cookieFile
		}
		settings, err := cfg.Settings()
		if err != nil {
			return err
		}

		transport, err := core.NewTransport(settings.Transport)
		if err != nil {
			return err
		}
		store := session.New(settings.BaseUrl)
		err = store.LoadFile(settings.CookieFile)
		if err != nil {
			slog.Debug("no cookie bundle loaded", "err", err)
		}
		client, err = forum.New(transport, store, settings.Forum)
		return err
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", tscommunity.ConfigFile, "config file")
	rootCmd.PersistentFlags().StringVar(&cookieFile, "cookies", "", "cookie bundle, overrides the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// fail prints an error with the action the forum client suggests for it.
func fail(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	var e *errs.Error
	if errors.As(err, &e) && e.Action != "" {
		fmt.Fprintln(os.Stderr, e.Action)
	}
	os.Exit(1)
}

func Execute() {
	ctx := serviceutil.SignalContext()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
