package storage

import (
	"log/slog"
)

// Config selects which adapter to construct and its connection details.
type Config struct {
	Durable struct {
		Dialect Dialect
		DSN     string
	}
	KV struct {
		Backend   string // consul | etcd | zookeeper
		Addresses []string
	}
}

// Open implements the selection policy from spec.md §4.5: attempt the
// durable backend; on failure fall back to key-value; on failure fall
// back to in-memory. Each tier's failure is logged, never fatal.
func Open(cfg Config) Adapter {
	if cfg.Durable.Dialect != "" {
		if a, err := OpenSQL(cfg.Durable.Dialect, cfg.Durable.DSN); err == nil {
			slog.Info("storage: using durable backend", "dialect", cfg.Durable.Dialect)
			return a
		} else {
			slog.Warn("storage: durable backend unavailable, falling back to key-value", "error", err)
		}
	}

	if cfg.KV.Backend != "" {
		var (
			a   *KVAdapter
			err error
		)
		switch cfg.KV.Backend {
		case "consul":
			addr := ""
			if len(cfg.KV.Addresses) > 0 {
				addr = cfg.KV.Addresses[0]
			}
			a, err = NewConsulKVAdapter(addr)
		case "etcd":
			a, err = NewEtcdKVAdapter(cfg.KV.Addresses)
		case "zookeeper":
			a, err = NewZookeeperKVAdapter(cfg.KV.Addresses)
		}
		if err == nil && a != nil {
			slog.Info("storage: using key-value backend", "backend", cfg.KV.Backend)
			return a
		}
		slog.Warn("storage: key-value backend unavailable, falling back to memory", "error", err)
	}

	slog.Info("storage: using in-memory backend")
	return NewMemoryAdapter()
}
