package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flavien-hugs/apikey-hub/internal/audit"
	"github.com/flavien-hugs/apikey-hub/internal/authgw"
	"github.com/flavien-hugs/apikey-hub/internal/config"
	"github.com/flavien-hugs/apikey-hub/internal/keys"
	"github.com/flavien-hugs/apikey-hub/internal/server"
	"github.com/flavien-hugs/apikey-hub/internal/store"
)

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the apikey-hub HTTP server",
		Long:  "Start the HTTP server exposing the key lifecycle and verification endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", config.DefaultPort, "HTTP listen port")
	cmd.Flags().String("host", config.DefaultHost, "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	logger.Info("store initialized", "dsn_set", cfg.Store.DSN != "")

	var gw authgw.Gateway
	switch cfg.Gateway.Mode {
	case "local":
		gw = authgw.NewLocalGateway(cfg.Gateway.LocalSecret)
		logger.Warn("using local JWT gateway, intended for development only")
	default:
		gw = authgw.NewHTTPGateway(cfg.Gateway)
		logger.Info("access gateway configured", "base_url", cfg.Gateway.BaseURL)
	}

	var trail audit.Recorder = audit.Nop{}
	if cfg.Audit.Enabled {
		sink := audit.NewHTTPSink(cfg.Audit.URL, cfg.AppName, logger)
		defer sink.Close()
		trail = sink
		logger.Info("audit trail enabled", "url", cfg.Audit.URL)
	}

	svc := keys.NewService(cfg.Keys, cfg.Gateway, st, logger)
	logger.Info("key service ready",
		"prefix", svc.Codec().Prefix(),
		"live_mode", cfg.Keys.LiveMode,
	)

	srv := server.New(cfg.Server, server.Deps{
		Service: svc,
		Gateway: gw,
		Store:   st,
		Trail:   trail,
		Version: appVersion,
	}, logger)

	return srv.ListenAndServe()
}
