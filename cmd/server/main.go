// Command server runs the certificate issuance gateway.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"certgate/internal/audit"
	auditmem "certgate/internal/audit/store/memory"
	auditpg "certgate/internal/audit/store/postgres"
	"certgate/internal/certstore"
	"certgate/internal/directory"
	"certgate/internal/identity/token"
	"certgate/internal/issuance"
	issuancehandler "certgate/internal/issuance/handler"
	issuancemetrics "certgate/internal/issuance/metrics"
	"certgate/internal/platform/config"
	"certgate/internal/platform/httpserver"
	"certgate/internal/platform/logger"
	platformmetrics "certgate/internal/platform/metrics"
	"certgate/internal/platform/redis"
	"certgate/internal/policy"
	policyhandler "certgate/internal/policy/handler"
	"certgate/internal/signing"
	httptransport "certgate/internal/transport/http"
	"certgate/internal/validation"
	validationmetrics "certgate/internal/validation/metrics"
	"certgate/internal/validation/validators"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Certificate store.
	var store certstore.Store
	var pool *pgxpool.Pool
	switch cfg.Store.Kind {
	case "postgres":
		var err error
		pool, err = pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("connect certificate store: %w", err)
		}
		defer pool.Close()
		store = certstore.NewPostgres(pool)
	default:
		store = certstore.NewMemory()
	}

	// Audit trail.
	sink, trail, closeSink, err := buildAuditSink(cfg, log)
	if err != nil {
		return err
	}
	if closeSink != nil {
		defer closeSink()
	}
	publisher := audit.NewPublisher(sink,
		audit.WithLogger(log),
		audit.WithAsyncBuffer(cfg.Audit.Buffer),
	)
	defer publisher.Close()

	// Validators and policies.
	registry := validation.NewRegistry()
	validators.RegisterBuiltins(registry, validators.Deps{
		Directory: buildDirectory(cfg),
	})

	policies, err := policy.NewRegistry(policy.FileSource(cfg.Policies.File), registry,
		policy.WithLogger(log),
		policy.WithDefaultTTL(cfg.Policies.DefaultTTL.Std()),
	)
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}

	pipeline := validation.NewPipeline(
		validation.WithLogger(log),
		validation.WithMetrics(validationmetrics.New()),
	)

	// Signing backends.
	backends := make(map[string]signing.Backend)
	var authority issuancehandler.AuthorityInfo
	if cfg.Signing.Local != nil {
		keys, err := signing.NewKeyManagerFromFiles(
			cfg.Signing.Local.CertFile,
			cfg.Signing.Local.KeyFile,
			cfg.Signing.Local.Passphrase,
		)
		if err != nil {
			return fmt.Errorf("load authority key material: %w", err)
		}
		local, err := signing.NewLocalCA(keys, store)
		if err != nil {
			return fmt.Errorf("build local signing backend: %w", err)
		}
		backends["local"] = local
		authority = local
	}
	if cfg.Signing.Remote != nil {
		var opts []signing.RemoteOption
		if cfg.Signing.Remote.Timeout > 0 {
			opts = append(opts, signing.WithTimeout(cfg.Signing.Remote.Timeout.Std()))
		}
		remote, err := signing.NewRemote(cfg.Signing.Remote.Endpoint, cfg.Signing.Remote.Issuer, opts...)
		if err != nil {
			return fmt.Errorf("build remote signing backend: %w", err)
		}
		backends["remote"] = remote
		if authority == nil {
			authority = remoteAuthority{remote}
		}
	}

	// Optional shared revocation cache.
	orchestratorOpts := []issuance.Option{
		issuance.WithLogger(log),
		issuance.WithMetrics(issuancemetrics.New()),
	}
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		orchestratorOpts = append(orchestratorOpts,
			issuance.WithStatusCache(certstore.NewRedisStatusCache(redisClient.Client)))
	}

	orchestrator := issuance.NewOrchestrator(policies, pipeline, backends, store, publisher, orchestratorOpts...)

	// HTTP surface.
	tokens := token.NewService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httptransport.NewRouter(log, platformmetrics.New(),
		httptransport.Config{RequestTimeout: cfg.Server.RequestTimeout.Std()},
		issuancehandler.New(orchestrator, authority, trail, tokens, log),
		policyhandler.New(policies, tokens, log),
	)
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout.Std())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting certgate", "addr", cfg.Server.Addr, "policies", policies.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// buildAuditSink assembles the configured sink; the returned Store may be
// nil when the sink cannot list events back (kafka).
func buildAuditSink(cfg *config.Config, log *slog.Logger) (audit.Sink, issuancehandler.AuditTrail, func(), error) {
	switch cfg.Audit.Sink {
	case "postgres":
		dsn := cfg.Audit.DSN
		if dsn == "" {
			dsn = cfg.Store.DSN
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect audit store: %w", err)
		}
		store := auditpg.New(db)
		return store, store, func() { _ = db.Close() }, nil
	case "kafka":
		sink, err := audit.NewKafkaSink(cfg.Audit.Kafka.Brokers, cfg.Audit.Kafka.Topic)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect audit broker: %w", err)
		}
		// Kafka cannot serve the read-back endpoint; trail queries answer
		// from an empty in-process store.
		log.Warn("audit trail endpoint is not backed by the kafka sink")
		return sink, auditmem.New(), sink.Close, nil
	default:
		store := auditmem.New()
		return store, store, nil, nil
	}
}

func buildDirectory(cfg *config.Config) directory.Directory {
	entries := make(map[string]directory.Attributes, len(cfg.Directory))
	for subject, entry := range cfg.Directory {
		entries[subject] = directory.Attributes{
			Groups: entry.Groups,
			Attrs:  entry.Attrs,
		}
	}
	return directory.NewStatic(entries)
}

// remoteAuthority adapts the remote backend to the CA info endpoint when no
// local authority is configured. The certificate body is not available
// locally.
type remoteAuthority struct {
	remote *signing.Remote
}

func (a remoteAuthority) Issuer() string      { return a.remote.Issuer() }
func (a remoteAuthority) Certificate() []byte { return nil }
