package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	sqliteadapter "github.com/YASSERRMD/regulatory-impact-chain/internal/adapters/db/sqlite"
	httpadapter "github.com/YASSERRMD/regulatory-impact-chain/internal/adapters/http"
	pubsubadapter "github.com/YASSERRMD/regulatory-impact-chain/internal/adapters/pubsub"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/application"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/cache"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

func main() {
	_ = godotenv.Load()

	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "riskgraph",
		Usage: "Regulatory impact and risk dependency graph server",
		Commands: []*cli.Command{
			serverCommand(),
			recalculateCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the HTTP API server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "db-path", Value: "riskgraph.db", Usage: "SQLite database path"},
			&cli.StringFlag{Name: "amqp-url", Value: "", Usage: "RabbitMQ URL; leave empty to run without an observer"},
			&cli.StringFlag{Name: "jwt-secret", Value: os.Getenv("RISKGRAPH_JWT_SECRET"), Usage: "HMAC secret for signing session tokens"},
			&cli.StringFlag{Name: "bootstrap-tenant-id", Value: "default", Usage: "tenant the bootstrap admin belongs to"},
			&cli.StringFlag{Name: "bootstrap-admin-email", Value: "admin@riskgraph.local", Usage: "initial admin email"},
			&cli.StringFlag{Name: "bootstrap-admin-password", Value: "", Usage: "initial admin password when no users exist yet"},
			&cli.DurationFlag{Name: "cache-sweep-interval", Value: 5 * time.Minute, Usage: "background TTL sweep interval"},
			&cli.DurationFlag{Name: "graph-ttl", Value: cache.GraphTTL, Usage: "TTL for a tenant's cached dependency graph"},
			&cli.IntFlag{Name: "max-risk-concurrency", Value: 0, Usage: "worker pool size for risk recalculation fan-out (0 = automatic)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, serverConfig{
				addr:               c.String("addr"),
				dbPath:             c.String("db-path"),
				amqpURL:            c.String("amqp-url"),
				jwtSecret:          c.String("jwt-secret"),
				tenantID:           c.String("bootstrap-tenant-id"),
				adminEmail:         c.String("bootstrap-admin-email"),
				adminPassword:      c.String("bootstrap-admin-password"),
				sweepInterval:      c.Duration("cache-sweep-interval"),
				graphTTL:           c.Duration("graph-ttl"),
				maxRiskConcurrency: int(c.Int("max-risk-concurrency")),
			})
		},
	}
}

func recalculateCommand() *cli.Command {
	return &cli.Command{
		Name:  "recalculate",
		Usage: "Run calculateAllRisks for one tenant and print the results",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-path", Value: "riskgraph.db", Usage: "SQLite database path"},
			&cli.StringFlag{Name: "tenant-id", Required: true, Usage: "tenant to recalculate risk for"},
			&cli.IntFlag{Name: "max-risk-concurrency", Value: 0, Usage: "worker pool size for risk recalculation fan-out (0 = automatic)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			db, err := sqliteadapter.Open(c.String("db-path"))
			if err != nil {
				return err
			}
			if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
				return err
			}
			repo := sqliteadapter.NewStore(db)
			svc := application.NewService(repo, cache.New(), nil, nil)
			svc.SetRiskConcurrency(int(c.Int("max-risk-concurrency")))
			results, err := svc.RecalculateRisk(ctx, c.String("tenant-id"))
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("%s:%s base=%.3f adjusted=%.3f level=%s\n", r.EntityType, r.EntityID, r.BaseRiskScore, r.AdjustedRiskScore, r.RiskLevel)
			}
			return nil
		},
	}
}

type serverConfig struct {
	addr               string
	dbPath             string
	amqpURL            string
	jwtSecret          string
	tenantID           string
	adminEmail         string
	adminPassword      string
	sweepInterval      time.Duration
	graphTTL           time.Duration
	maxRiskConcurrency int
}

func runServer(ctx context.Context, cfg serverConfig) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.jwtSecret == "" {
		return fmt.Errorf("jwt secret is required: set --jwt-secret or RISKGRAPH_JWT_SECRET")
	}

	db, err := sqliteadapter.Open(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	repo := sqliteadapter.NewStore(db)

	c := cache.New(cache.WithLogger(log), cache.WithSweepInterval(cfg.sweepInterval), cache.WithGraphTTL(cfg.graphTTL))

	var observer domain.Observer
	if cfg.amqpURL != "" {
		conn, err := pubsubadapter.Dial(cfg.amqpURL)
		if err != nil {
			return fmt.Errorf("connecting to rabbitmq: %w", err)
		}
		defer func() { _ = conn.Close() }()
		obs, err := pubsubadapter.NewObserver(conn, log)
		if err != nil {
			return fmt.Errorf("creating observer: %w", err)
		}
		defer func() { _ = obs.Close() }()
		observer = obs
	} else {
		log.Warn("no amqp-url configured, running without an event observer")
	}

	service := application.NewService(repo, c, observer, log)
	service.SetRiskConcurrency(cfg.maxRiskConcurrency)

	if cfg.adminPassword != "" {
		if err := service.BootstrapAdmin(ctx, cfg.tenantID, cfg.adminEmail, cfg.adminPassword); err != nil {
			return fmt.Errorf("bootstrapping admin: %w", err)
		}
	}

	router := httpadapter.NewRouter(service, []byte(cfg.jwtSecret), log)
	srv := &http.Server{Addr: cfg.addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.Shutdown()
	return srv.Shutdown(shutdownCtx)
}
