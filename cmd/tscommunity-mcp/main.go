package main

import (
	"context"
	"flag"
	"log/slog"

	"tscommunity/lib/restyutil"
	"tscommunity/lib/scrapers/tscommunity/core"
	"tscommunity/lib/scrapers/tscommunity/forum"
	"tscommunity/lib/scrapers/tscommunity/session"
	"tscommunity/lib/serviceutil"
	"tscommunity/lib/telemetry"
	"tscommunity/services/tscommunity"

	"github.com/mark3labs/mcp-go/server"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", tscommunity.ConfigFile, "Path to the config file, a missing file means defaults.")
	verbose := flag.Bool("v", false, "Enable debug logging and http dumps.")
	flag.Parse()

	// slog has to point at stderr before anything logs, stdout is the
	// protocol stream
	telemetry.InitSlog(*verbose)
	serviceutil.LoadDotEnv()

	ctx := serviceutil.SignalContext()

	cfg, err := tscommunity.LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		serviceutil.Fatal("invalid config", err)
	}
	settings.Debug = settings.Debug || *verbose
	telemetry.InitSlog(settings.Debug)

	tel, err := telemetry.Setup(ctx, "tscommunity-mcp", settings.Telemetry)
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer func() {
		err := tel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	if settings.PerfStatsInterval > 0 {
		telemetry.InstrumentPerfStats(ctx, settings.PerfStatsInterval)
	}

	client, err := initForum(settings)
	if err != nil {
		serviceutil.Fatal("init forum client", err)
	}
	restoreSession(ctx, client, settings.CookieFile)

	srv := server.NewMCPServer(
		"tradestation-community",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	service := tscommunity.NewService(client, tscommunity.Options{
		CookieFile: settings.CookieFile,
	})
	service.Register(srv)

	slog.Info("serving mcp over stdio", "base_url", settings.BaseUrl.String(), "authenticated", client.Session().IsAuthenticated())
	err = server.ServeStdio(srv, server.WithErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError)))
	if err != nil {
		serviceutil.Fatal("serve stdio", err)
	}
}

func initForum(settings tscommunity.Settings) (*forum.Client, error) {
	transportOpts := settings.Transport
	if settings.Debug && settings.HttpDumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(settings.HttpDumpDir)
		if err != nil {
			return nil, err
		}
		transportOpts.DumpOutput = output
	}

	transport, err := core.NewTransport(transportOpts)
	if err != nil {
		return nil, err
	}
	store := session.New(settings.BaseUrl)
	return forum.New(transport, store, settings.Forum)
}

// restoreSession loads the cookie bundle and checks it against the forum,
// falling back to the credentials in the environment. None of it is fatal,
// the tools report the session state on their own.
func restoreSession(ctx context.Context, client *forum.Client, cookieFile string) {
	store := client.Session()
	if cookieFile != "" {
		err := store.LoadFile(cookieFile)
		if err != nil {
			slog.Warn("no usable cookie bundle", "path", cookieFile, "err", err)
		}
	}

	if store.IsAuthenticated() {
		err := client.Check(ctx)
		if err == nil {
			slog.Info("restored forum session", "cookies", len(store.Cookies()))
			return
		}
		slog.Warn("saved forum session is not valid", "err", err)
	}

	creds, ok := tscommunity.CredentialsFromEnv()
	if !ok {
		slog.Info("starting without a forum session, load a cookie bundle or call login")
		return
	}
	err := client.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		slog.Warn("automatic login failed", "err", err)
		return
	}
	slog.Info("logged in to the forum", "username", creds.Username)
}
