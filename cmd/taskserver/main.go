// Command taskserver runs the fleet command-dispatch broker: the gRPC
// service commanders and executors both connect to. Grounded on the
// teacher's cmd/nova daemon command (config load -> observability init ->
// store/executor construction -> gRPC server start -> signal-driven
// shutdown), adapted from a serverless control plane to the task server's
// registry/keystore/dispatch wiring.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/funtonic/taskserver/internal/config"
	"github.com/funtonic/taskserver/internal/dispatch"
	"github.com/funtonic/taskserver/internal/keystore"
	"github.com/funtonic/taskserver/internal/logging"
	"github.com/funtonic/taskserver/internal/metrics"
	"github.com/funtonic/taskserver/internal/observability"
	"github.com/funtonic/taskserver/internal/registry"
	"github.com/funtonic/taskserver/internal/tlsconfig"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "taskserver",
		Short: "Fleet command-dispatch broker",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to JSON config file (optional, defaults apply otherwise)")
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		grpcAddr    string
		dataDir     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("addr") {
				cfg.GRPC.Addr = grpcAddr
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Storage.DataDir = dataDir
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Observability.Metrics.Addr = metricsAddr
			}

			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&grpcAddr, "addr", "", "gRPC listen address (default :4242)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding known_executors.yml and the executor key stores")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus /metrics listen address")
	return cmd
}

func run(cfg *config.Config) error {
	logging.SetLevelFromString(cfg.Observability.Logging.Level)
	logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

	ctx := context.Background()
	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.Shutdown(context.Background())

	if cfg.Observability.Metrics.Enabled {
		metrics.Init(cfg.Observability.Metrics.Namespace)
	}

	authorizedKeys, err := keystore.LoadMemoryFromConfig(cfg.Keys.AuthorizedKeys)
	if err != nil {
		return fmt.Errorf("load authorized_keys: %w", err)
	}
	adminAuthorizedKeys, err := keystore.LoadMemoryFromConfig(cfg.Keys.AdminAuthorizedKeys)
	if err != nil {
		return fmt.Errorf("load admin_authorized_keys: %w", err)
	}

	trustedKeys, err := keystore.OpenFile(filepath.Join(cfg.Storage.DataDir, cfg.Storage.TrustedExecutorsFile))
	if err != nil {
		return fmt.Errorf("open trusted_executor_keys: %w", err)
	}
	unapprovedKeys, err := keystore.OpenFile(filepath.Join(cfg.Storage.DataDir, cfg.Storage.UnapprovedExecutorsFile))
	if err != nil {
		return fmt.Errorf("open unapproved_executor_keys: %w", err)
	}
	trust := &keystore.ExecutorTrust{Trusted: trustedKeys, Unapproved: unapprovedKeys}
	metrics.SetTOFUPending(len(unapprovedKeys.ListAll()))

	reg, err := registry.Open(filepath.Join(cfg.Storage.DataDir, cfg.Storage.KnownExecutorsFile), authorizedKeys)
	if err != nil {
		return fmt.Errorf("open known_executors: %w", err)
	}

	srv, err := newGRPCServer(cfg)
	if err != nil {
		return fmt.Errorf("build gRPC server: %w", err)
	}

	mailbox := dispatch.NewMailboxes()
	executorSrv := &dispatch.ExecutorServer{Registry: reg, Trust: trust, Mailbox: mailbox}
	commanderSrv := &dispatch.CommanderServer{
		Registry:            reg,
		AuthorizedKeys:      authorizedKeys,
		AdminAuthorizedKeys: adminAuthorizedKeys,
		ExecutorTrust:       trust,
		Mailbox:             mailbox,
	}

	funtonicpb.RegisterExecutorServiceServer(srv, executorSrv)
	funtonicpb.RegisterCommanderServiceServer(srv, commanderSrv)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPC.Addr, err)
	}

	go func() {
		tlsEnabled := tlsconfig.Config{CACert: cfg.GRPC.TLSCA, Cert: cfg.GRPC.TLSCert, Key: cfg.GRPC.TLSKey}.Enabled()
		logging.Op().Info("task server listening", "addr", cfg.GRPC.Addr, "tls", tlsEnabled)
		if err := srv.Serve(lis); err != nil {
			logging.Op().Error("gRPC server stopped", "error", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.Observability.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Observability.Metrics.Addr, Handler: mux}
		go func() {
			logging.Op().Info("metrics server listening", "addr", cfg.Observability.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Op().Error("metrics server stopped", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Op().Info("shutdown signal received")
	srv.GracefulStop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}

func newGRPCServer(cfg *config.Config) (*grpc.Server, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor()),
	}

	tlsCfg := tlsconfig.Config{CACert: cfg.GRPC.TLSCA, Cert: cfg.GRPC.TLSCert, Key: cfg.GRPC.TLSKey}
	if tlsCfg.Enabled() {
		creds, err := tlsCfg.ServerCredentials()
		if err != nil {
			return nil, fmt.Errorf("build TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	return grpc.NewServer(opts...), nil
}
