// Command gateway runs the HTTP-to-broker request gateway: it loads a
// route table and broker configuration, wires the dispatch/demux/
// resolver/terminator core over a NATS connection, and serves the
// configured entities' REST surface over HTTP until it receives a
// shutdown signal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/reqgateway/broker"
	"github.com/c360/reqgateway/config"
	"github.com/c360/reqgateway/demux"
	"github.com/c360/reqgateway/dispatcher"
	"github.com/c360/reqgateway/entities"
	"github.com/c360/reqgateway/idalloc"
	"github.com/c360/reqgateway/metric"
	"github.com/c360/reqgateway/natsclient"
	"github.com/c360/reqgateway/pkg/tlsutil"
	"github.com/c360/reqgateway/reqtable"
	"github.com/c360/reqgateway/resolver"
	"github.com/c360/reqgateway/terminator"
)

const Version = "0.1.0"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowVersion {
		fmt.Printf("reqgateway version %s\n", Version)
		return nil
	}
	if cliCfg.ShowHelp {
		flagUsage()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	safeCfg := config.NewSafeConfig(cfg)
	watchReloads(ctx, safeCfg, cliCfg.ConfigPath, logger)

	return runGateway(ctx, safeCfg, logger, cliCfg.ShutdownTimeout)
}

// watchReloads reloads the on-disk config on SIGHUP and swaps it into
// safeCfg. The running broker connection, dispatcher and adapters were
// built from the pre-reload snapshot and keep running unchanged; a reload
// only updates what /admin/config reports until the next restart.
func watchReloads(ctx context.Context, safeCfg *config.SafeConfig, path string, logger *slog.Logger) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(sighup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sighup:
				reloaded, err := config.LoadFile(path)
				if err != nil {
					logger.Error("config reload failed, keeping previous config", "error", err)
					continue
				}
				if err := safeCfg.Update(reloaded); err != nil {
					logger.Error("config reload rejected", "error", err)
					continue
				}
				logger.Info("configuration reloaded", "path", path)
			}
		}
	}()
}

func runGateway(ctx context.Context, safeCfg *config.SafeConfig, logger *slog.Logger, shutdownTimeout time.Duration) error {
	cfg, err := safeCfg.Get()
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	metricsRegistry := metric.NewMetricsRegistry()
	gatewayMetrics, err := metric.RegisterGatewayMetrics(metricsRegistry)
	if err != nil {
		return fmt.Errorf("register gateway metrics: %w", err)
	}

	natsClient, err := natsclient.NewClient(cfg.Broker.URL,
		natsclient.WithTimeout(cfg.Broker.Timeout()),
		natsclient.WithReconnectWait(cfg.Broker.ReconnectWait()),
		natsclient.WithMaxReconnects(cfg.Broker.MaxReconnects),
		natsclient.WithLogger(slogLogger{logger}),
		natsclient.WithCredentials(cfg.Broker.Username, cfg.Broker.Password),
		natsclient.WithToken(cfg.Broker.Token),
		natsclient.WithName("reqgateway-"+cfg.Broker.InstanceID),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				gatewayMetrics.BrokerConnected.Set(1)
			} else {
				gatewayMetrics.BrokerConnected.Set(0)
			}
		}),
		natsclient.WithConnectionLostCallback(func(error) {
			gatewayMetrics.BrokerConnected.Set(0)
		}),
	)
	if err != nil {
		return fmt.Errorf("create nats client: %w", err)
	}
	defer natsClient.Close(context.Background())

	gwConfig := cfg.Gateway
	if len(gwConfig.Routes) == 0 {
		gwConfig.Routes = entities.Routes()
	}

	allocator := idalloc.New()
	table := reqtable.New()
	transport := broker.New(natsClient, cfg.Broker.InstanceID)
	res := resolver.New(allocator, transport,
		resolver.WithMaxDepth(cfg.Resolver.MaxDepth),
		resolver.WithSubFetchTimeout(cfg.Resolver.SubFetchTimeout()),
		resolver.WithFieldLookup(entities.FieldLookup(gwConfig.Routes)),
		resolver.WithOnSubFetch(func(outcome string) {
			gatewayMetrics.ResolverSubFetches.WithLabelValues(outcome).Inc()
		}),
	)
	dmx := demux.New(allocator, table, res, slogLogger{logger})

	if err := transport.Start(ctx, dmx.HandleFrame); err != nil {
		return fmt.Errorf("start broker transport: %w", err)
	}
	gatewayMetrics.BrokerConnected.Set(1)

	term := terminator.New(allocator, table,
		terminator.WithCadence(cfg.Sweep.Cadence()),
		terminator.WithDeadline(cfg.Sweep.Deadline()),
		terminator.WithWorkers(cfg.Sweep.Workers),
		terminator.WithOnEvict(func() {
			gatewayMetrics.SweepEvictions.Inc()
		}),
	)
	term.Start(ctx)
	defer term.Stop()

	disp := dispatcher.New(allocator, table, transport)

	adapters, err := entities.BuildAdapters(gwConfig, disp, res, func(entity, outcome string) {
		gatewayMetrics.RequestsTotal.WithLabelValues(entity, outcome).Inc()
	})
	if err != nil {
		return fmt.Errorf("build entity adapters: %w", err)
	}

	mux := http.NewServeMux()
	for _, adapter := range adapters {
		adapter.RegisterRoutes("/", mux)
	}
	mux.HandleFunc("/admin/config", adminConfigHandler(safeCfg))

	metricsServer := metric.NewServer(9090, "/metrics", metricsRegistry, cfg.Security)
	go func() {
		if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer metricsServer.Stop()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	if cfg.Security.TLS.Server.Enabled {
		tlsConfig, stopTLS, err := tlsutil.LoadServerTLSConfigWithACME(ctx, cfg.Security.TLS.Server)
		if err != nil {
			return fmt.Errorf("load server tls config: %w", err)
		}
		defer stopTLS()
		httpServer.TLSConfig = tlsConfig
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr, "tls", cfg.Security.TLS.Server.Enabled)
		var err error
		if cfg.Security.TLS.Server.Enabled {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("gateway shutdown complete")
	return nil
}

func flagUsage() {
	fmt.Println("reqgateway [-config path] [-log-level level] [-log-format format] [-debug] [-validate]")
}

// adminConfigHandler serves the live configuration snapshot held in
// safeCfg, with broker credentials redacted. It's the one place the
// running process's config is observable without a restart, and the
// target a SIGHUP reload (see watchReloads) actually updates.
func adminConfigHandler(safeCfg *config.SafeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cfg, err := safeCfg.Get()
		if err != nil {
			http.Error(w, "config unavailable", http.StatusInternalServerError)
			return
		}
		if cfg.Broker.Username != "" {
			cfg.Broker.Username = "REDACTED"
		}
		if cfg.Broker.Password != "" {
			cfg.Broker.Password = "REDACTED"
		}
		if cfg.Broker.Token != "" {
			cfg.Broker.Token = "REDACTED"
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(cfg); err != nil {
			http.Error(w, "encode config", http.StatusInternalServerError)
		}
	}
}
