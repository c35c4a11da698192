package main

import (
	"context"
	"fmt"
	"time"

	"github.com/arcflow/conductor/pkg/config"
	"github.com/arcflow/conductor/pkg/logger"
	"github.com/arcflow/conductor/pkg/observability"
	"github.com/arcflow/conductor/pkg/server"
	"github.com/arcflow/conductor/pkg/storage"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Storage   string `help:"Durable storage dialect: sqlite, postgres, mysql (default: in-memory)." placeholder:"DIALECT"`
	StorageDB string `name:"storage-db" help:"Storage DSN/path (required with --storage)." placeholder:"DSN"`
	KV        string `help:"Key-value backend for checkpoints/dlq when no durable storage is set: consul, etcd, zookeeper." placeholder:"BACKEND"`
	KVAddr    string `name:"kv-addr" help:"Key-value backend address." placeholder:"HOST:PORT"`

	Host string `help:"HTTP listen host." default:"0.0.0.0"`
	Port int    `help:"HTTP listen port." default:"8080"`

	Observe bool `help:"Enable OpenTelemetry tracing and Prometheus metrics."`

	DLQSweep time.Duration `name:"dlq-sweep" help:"How often the auto-retryer sweeps the dead-letter queue." default:"30s"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	var obs *observability.Manager
	if c.Observe {
		obs, err = observability.NewManager(ctx, &observability.Config{
			Tracing: observability.TracingConfig{Enabled: true},
			Metrics: observability.MetricsConfig{Enabled: true},
		})
		if err != nil {
			return fmt.Errorf("starting observability: %w", err)
		}
	}

	comps, err := buildComponents(ctx, cfg, c.storageConfig(), obs, logger.GetLogger(), nil)
	if err != nil {
		return fmt.Errorf("wiring components: %w", err)
	}

	go comps.AutoRetryer.Run(ctx, c.DLQSweep)
	defer comps.AutoRetryer.Stop()

	srv, err := server.New(server.Options{
		Config:        &cfg.Server,
		Orchestrator:  comps.Orchestrator,
		Storage:       comps.Storage,
		DLQ:           comps.DLQ,
		Observability: obs,
		Logger:        logger.GetLogger(),
	})
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	srv.Wait()
	return nil
}

// storageConfig translates the serve flags into pkg/storage's selection
// policy: durable dialect, else a key-value backend, else in-memory.
func (c *ServeCmd) storageConfig() storage.Config {
	var sc storage.Config
	if c.Storage != "" {
		sc.Durable.Dialect = dialectFor(c.Storage)
		sc.Durable.DSN = c.StorageDB
	}
	if c.KV != "" {
		sc.KV.Backend = c.KV
		if c.KVAddr != "" {
			sc.KV.Addresses = []string{c.KVAddr}
		}
	}
	return sc
}

// dialectFor maps the serve command's user-facing --storage names onto
// pkg/storage's driver-name dialect constants.
func dialectFor(name string) storage.Dialect {
	switch name {
	case "sqlite", "sqlite3":
		return storage.DialectSQLite
	case "postgres", "postgresql":
		return storage.DialectPostgres
	case "mysql":
		return storage.DialectMySQL
	default:
		return storage.Dialect(name)
	}
}

// loadConfig reads the config file named by --config, falling back to
// config.Config's own defaults when no path was given.
func loadConfig(cli *CLI) (*config.Config, error) {
	if cli.Config == "" {
		cfg := &config.Config{}
		if err := cfg.Load(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.LoadConfig(config.LoaderOptions{Path: cli.Config})
}
