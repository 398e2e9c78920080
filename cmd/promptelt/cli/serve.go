package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/promptelt/promptelt/internal/server"
	"github.com/promptelt/promptelt/internal/telemetry"
)

const banner = `
                                _       _ _
 _ __  _ __ ___  _ __ ___  _ __ | |_ ___| | |_
| '_ \| '__/ _ \| '_ ` + "`" + ` _ \| '_ \| __/ _ \ | __|
| |_) | | | (_) | | | | | | |_) | ||  __/ | |_
| .__/|_|  \___/|_| |_| |_| .__/ \__\___|_|\__|
|_|                       |_|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the promptelt API server",
		Long:  "Start the HTTP server that exposes the broker, the assistant and saved conversations and pipelines.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Print(banner)
	fmt.Println()

	if err := a.startup(ctx); err != nil {
		return err
	}
	instanceID := telemetry.ResolveInstanceID(ctx, a.store, versionString())

	srvCfg, err := serverConfig(a)
	if err != nil {
		return err
	}
	srv := server.New(srvCfg, a.registry, a.broker, a.store, a.logger)

	go a.refreshLoop(ctx, a.cfg.Snapshot.RefreshInterval)

	scheme := "http"
	if srvCfg.TLSCertFile != "" {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s:%d", scheme, srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ promptelt %s (instance %s)\n", versionString(), instanceID)
	fmt.Printf("→ Listening on %s\n", base)
	fmt.Printf("→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Printf("→ Health:     %s/healthz\n", base)
	fmt.Printf("→ Connected databases: %d\n", len(a.broker.Connections()))
	if !a.cfg.Archive.Enabled() {
		fmt.Println("→ Archive:    disabled")
	}
	fmt.Println()

	return srv.ListenAndServe(ctx)
}

// serverConfig maps the file configuration onto server.Config.
func serverConfig(a *app) (server.Config, error) {
	sc := a.cfg.Server
	shutdown, err := sc.ShutdownDuration()
	if err != nil {
		return server.Config{}, err
	}
	bodyLimit, err := sc.BodyLimit()
	if err != nil {
		return server.Config{}, err
	}
	cfg := server.Config{
		Host:            sc.Host,
		Port:            sc.Port,
		ShutdownTimeout: shutdown,
		CORSOrigins:     sc.CORS.Origins,
		MaxBodySize:     bodyLimit,
		RateLimit:       sc.RateLimit,
		Version:         versionString(),
	}
	if sc.TLS.Enabled {
		if sc.TLS.CertFile == "" || sc.TLS.KeyFile == "" {
			return server.Config{}, fmt.Errorf("server.tls: cert_file and key_file are required when enabled")
		}
		cfg.TLSCertFile = sc.TLS.CertFile
		cfg.TLSKeyFile = sc.TLS.KeyFile
	}
	return cfg, nil
}
