package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/apis"
	"github.com/admitd/admitd/internal/admitsrv/auditlog"
	"github.com/admitd/admitd/internal/admitsrv/auth"
	"github.com/admitd/admitd/internal/admitsrv/auth/keymanager"
	"github.com/admitd/admitd/internal/admitsrv/checkin"
	"github.com/admitd/admitd/internal/admitsrv/config"
	"github.com/admitd/admitd/internal/admitsrv/credential"
	"github.com/admitd/admitd/internal/admitsrv/db/dbmanager"
	"github.com/admitd/admitd/internal/admitsrv/db/postgresql"
	"github.com/admitd/admitd/internal/admitsrv/eventbus"
	"github.com/admitd/admitd/internal/admitsrv/eventkey"
	"github.com/admitd/admitd/internal/admitsrv/keycustody"
	"github.com/admitd/admitd/internal/admitsrv/scanner"
	"github.com/admitd/admitd/internal/admitsrv/server"
	"github.com/admitd/admitd/internal/common/logtrace"
)

// tokenSweepInterval is how often expired registration tokens are purged.
const tokenSweepInterval = 1 * time.Hour

const DefaultConfigFile = "/etc/admitd/admitd.conf"

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog := log.With().Str("state", "init").Logger()

	// Local development keeps the master secret in a .env file.
	_ = godotenv.Load()

	opt := parseFlags()

	slog.Info().Str("config_file", opt.configFile).Msg("loading config file")
	if err := config.LoadConfig(opt.configFile); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}

	pool, err := dbmanager.NewPostgresqlDb(ctx, config.Config().DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Shutdown()
	store := postgresql.NewStore(pool)

	custodian, cerr := keycustody.New(config.Config().Auth.KeyEncryptionPasswd)
	if cerr != nil {
		return fmt.Errorf("initializing key custody: %w", cerr)
	}

	tokenValidity, err := config.Config().Trust.GetRegistrationTokenValidity()
	if err != nil {
		return fmt.Errorf("parsing registration token validity: %w", err)
	}
	credentialValidity, err := config.Config().Trust.GetScannerCredentialValidity()
	if err != nil {
		return fmt.Errorf("parsing scanner credential validity: %w", err)
	}

	keys := eventkey.NewManager(store, custodian, config.Config().Trust.RSAKeySizeBits)
	creds := credential.New(keys)
	authority := scanner.NewAuthority(store, store, store, keys, creds, tokenValidity, credentialValidity)

	bus := eventbus.New()
	defer bus.Shutdown()
	engine := checkin.NewEngine(store, store, store, creds, bus)

	serviceKeys := keymanager.New(store, custodian)
	authMgr := auth.NewManager(serviceKeys)

	auditLog := auditlog.New(config.Config().AuditLog.GetPath(), serviceKeys)
	if auditLog.Enabled() {
		stopAudit := auditLog.Attach(ctx, bus)
		defer stopAudit()
		defer auditLog.Close()
		slog.Info().Str("path", config.Config().AuditLog.GetPath()).Msg("audit log enabled")
	}

	api := apis.New(authMgr, keys, creds, authority, engine, store)
	s, err := server.CreateNewServer(api, pool.Ping)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	s.MountHandlers()

	server.StartTokenSweep(ctx, authority, tokenSweepInterval)

	serverErrors, shutdownServer, err := startHTTPServer(ctx, s)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		shutdownServer()
	}

	slog.Info().Msg("server stopped")
	return nil
}

func startHTTPServer(ctx context.Context, s *server.AdmitServer) (chan error, func(), error) {
	slog := log.With().Str("state", "init").Logger()

	srv := &http.Server{
		Addr:              ":" + config.Config().ServerPort,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		if config.Config().SupportTLS {
			slog.Info().Str("port", config.Config().ServerPort).Msg("server started with TLS")

			tlsConfig, err := createTLSConfig()
			if err != nil {
				serverErrors <- fmt.Errorf("creating TLS config: %w", err)
				return
			}
			listener, err := tls.Listen("tcp", srv.Addr, tlsConfig)
			if err != nil {
				serverErrors <- fmt.Errorf("creating TLS listener: %w", err)
				return
			}
			serverErrors <- srv.Serve(listener)
		} else {
			slog.Info().Str("port", config.Config().ServerPort).Msg("server started")
			serverErrors <- srv.ListenAndServe()
		}
	}()

	shutdownFn := func() {
		// Give outstanding requests 5 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error().Err(err).Msg("could not stop server gracefully")
			if err := srv.Close(); err != nil {
				slog.Error().Err(err).Msg("could not stop server")
			}
		}
	}

	return serverErrors, shutdownFn, nil
}

func createTLSConfig() (*tls.Config, error) {
	cfg := config.Config()

	cert, err := tls.X509KeyPair(cfg.TLSCertPEM, cfg.TLSKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func parseFlags() cmdoptions {
	var opt cmdoptions
	flag.StringVar(&opt.configFile, "config", DefaultConfigFile, "Path to the config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
