package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/go-zookeeper/zk"
)

// kvClient is the minimal get/put/delete/list-keys surface the three
// distributed backends (consul, etcd, zookeeper) are reduced to. Each
// concrete client below adapts its own SDK to this shape.
type kvClient interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

const (
	kvTaskPrefix       = "conductor/tasks/"
	kvCheckpointPrefix = "conductor/checkpoints/"
	kvDLQPrefix        = "conductor/dlq/"
)

// KVAdapter is the key-value fallback tier of the storage chain (spec.md
// §4.5): used when a durable SQL backend isn't available, backed by
// consul, etcd or zookeeper — the same three distribution backends
// pkg/config uses for shared configuration.
type KVAdapter struct {
	client  kvClient
	backend string
}

// NewConsulKVAdapter backs the adapter with hashicorp/consul/api.
func NewConsulKVAdapter(addr string) (*KVAdapter, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &KVAdapter{client: &consulKV{kv: client.KV()}, backend: "consul"}, nil
}

// NewEtcdKVAdapter backs the adapter with go.etcd.io/etcd/client/v3.
func NewEtcdKVAdapter(endpoints []string) (*KVAdapter, error) {
	client, err := clientv3.New(clientv3.Config{Endpoints: endpoints, DialTimeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	return &KVAdapter{client: &etcdKV{client: client}, backend: "etcd"}, nil
}

// NewZookeeperKVAdapter backs the adapter with github.com/go-zookeeper/zk.
func NewZookeeperKVAdapter(servers []string) (*KVAdapter, error) {
	conn, _, err := zk.Connect(servers, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("zookeeper connect: %w", err)
	}
	return &KVAdapter{client: &zkKV{conn: conn}, backend: "zookeeper"}, nil
}

func (a *KVAdapter) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return a.client.Put(ctx, key, data)
}

func (a *KVAdapter) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := a.client.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	return true, json.Unmarshal(data, v)
}

func (a *KVAdapter) SaveTask(ctx context.Context, t TaskRecord) error {
	t.SchemaVersion = SchemaVersion
	return a.putJSON(ctx, kvTaskPrefix+t.ID, t)
}

func (a *KVAdapter) UpdateTask(ctx context.Context, t TaskRecord) error { return a.SaveTask(ctx, t) }

func (a *KVAdapter) LoadTask(ctx context.Context, id string) (TaskRecord, bool, error) {
	var t TaskRecord
	ok, err := a.getJSON(ctx, kvTaskPrefix+id, &t)
	return t, ok, err
}

func (a *KVAdapter) DeleteTask(ctx context.Context, id string) error {
	return a.client.Delete(ctx, kvTaskPrefix+id)
}

func (a *KVAdapter) LoadPendingTasks(ctx context.Context) ([]TaskRecord, error) {
	keys, err := a.client.ListKeys(ctx, kvTaskPrefix)
	if err != nil {
		return nil, err
	}
	var out []TaskRecord
	for _, k := range keys {
		var t TaskRecord
		if ok, err := a.getJSON(ctx, k, &t); err != nil {
			return nil, err
		} else if !ok {
			continue
		}
		switch t.Status {
		case "pending", "queued", "in_progress":
			out = append(out, t)
		}
	}
	return out, nil
}

func (a *KVAdapter) SaveCheckpoint(ctx context.Context, c CheckpointRecord) error {
	c.SchemaVersion = SchemaVersion
	return a.putJSON(ctx, kvCheckpointPrefix+c.ID, c)
}

func (a *KVAdapter) LoadLatestCheckpoint(ctx context.Context, taskID string) (CheckpointRecord, bool, error) {
	all, err := a.ListCheckpoints(ctx, taskID)
	if err != nil || len(all) == 0 {
		return CheckpointRecord{}, false, err
	}
	latest := all[0]
	for _, c := range all[1:] {
		if c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
		}
	}
	return latest, true, nil
}

func (a *KVAdapter) ListCheckpoints(ctx context.Context, taskID string) ([]CheckpointRecord, error) {
	keys, err := a.client.ListKeys(ctx, kvCheckpointPrefix)
	if err != nil {
		return nil, err
	}
	var out []CheckpointRecord
	for _, k := range keys {
		var c CheckpointRecord
		if ok, err := a.getJSON(ctx, k, &c); err != nil {
			return nil, err
		} else if ok && c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (a *KVAdapter) DeleteCheckpoint(ctx context.Context, id string) error {
	return a.client.Delete(ctx, kvCheckpointPrefix+id)
}

func (a *KVAdapter) CleanupCheckpoints(ctx context.Context, maxAge time.Duration) (int, error) {
	keys, err := a.client.ListKeys(ctx, kvCheckpointPrefix)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for _, k := range keys {
		var c CheckpointRecord
		if ok, err := a.getJSON(ctx, k, &c); err != nil {
			return n, err
		} else if ok && c.UpdatedAt.Before(cutoff) {
			if err := a.client.Delete(ctx, k); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (a *KVAdapter) SaveDeadLetter(ctx context.Context, d DeadLetterRecord) error {
	d.SchemaVersion = SchemaVersion
	return a.putJSON(ctx, kvDLQPrefix+d.ID, d)
}

func (a *KVAdapter) LoadDeadLetter(ctx context.Context, id string) (DeadLetterRecord, bool, error) {
	var d DeadLetterRecord
	ok, err := a.getJSON(ctx, kvDLQPrefix+id, &d)
	return d, ok, err
}

func (a *KVAdapter) ListDeadLetters(ctx context.Context) ([]DeadLetterRecord, error) {
	keys, err := a.client.ListKeys(ctx, kvDLQPrefix)
	if err != nil {
		return nil, err
	}
	var out []DeadLetterRecord
	for _, k := range keys {
		var d DeadLetterRecord
		if ok, err := a.getJSON(ctx, k, &d); err != nil {
			return nil, err
		} else if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (a *KVAdapter) DeleteDeadLetter(ctx context.Context, id string) error {
	return a.client.Delete(ctx, kvDLQPrefix+id)
}

func (a *KVAdapter) CleanupDeadLetters(ctx context.Context, now time.Time) (int, error) {
	entries, err := a.ListDeadLetters(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range entries {
		if !now.Before(d.ExpiresAt) {
			if err := a.DeleteDeadLetter(ctx, d.ID); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (a *KVAdapter) GetStats(ctx context.Context) (Stats, error) {
	tasks, _ := a.client.ListKeys(ctx, kvTaskPrefix)
	cps, _ := a.client.ListKeys(ctx, kvCheckpointPrefix)
	dlq, _ := a.client.ListKeys(ctx, kvDLQPrefix)
	return Stats{TaskCount: len(tasks), CheckpointCount: len(cps), DeadLetterCount: len(dlq), Backend: a.backend}, nil
}

func (a *KVAdapter) Export(ctx context.Context) (Dataset, error) {
	ds := Dataset{}
	tasks, err := a.LoadPendingTasks(ctx)
	if err != nil {
		return ds, err
	}
	ds.Tasks = tasks
	dlq, err := a.ListDeadLetters(ctx)
	if err != nil {
		return ds, err
	}
	ds.DeadLetters = dlq
	return ds, nil
}

func (a *KVAdapter) Import(ctx context.Context, ds Dataset) error {
	for _, t := range ds.Tasks {
		if err := a.SaveTask(ctx, t); err != nil {
			return err
		}
	}
	for _, c := range ds.Checkpoints {
		if err := a.SaveCheckpoint(ctx, c); err != nil {
			return err
		}
	}
	for _, d := range ds.DeadLetters {
		if err := a.SaveDeadLetter(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (a *KVAdapter) Close() error { return nil }

// --- consul ---

type consulKV struct{ kv *consulapi.KV }

func (c *consulKV) Put(_ context.Context, key string, value []byte) error {
	_, err := c.kv.Put(&consulapi.KVPair{Key: key, Value: value}, nil)
	return err
}

func (c *consulKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	pair, _, err := c.kv.Get(key, nil)
	if err != nil {
		return nil, false, err
	}
	if pair == nil {
		return nil, false, nil
	}
	return pair.Value, true, nil
}

func (c *consulKV) Delete(_ context.Context, key string) error {
	_, err := c.kv.Delete(key, nil)
	return err
}

func (c *consulKV) ListKeys(_ context.Context, prefix string) ([]string, error) {
	pairs, _, err := c.kv.List(prefix, nil)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	return keys, nil
}

// --- etcd ---

type etcdKV struct{ client *clientv3.Client }

func (e *etcdKV) Put(ctx context.Context, key string, value []byte) error {
	_, err := e.client.Put(ctx, key, string(value))
	return err
}

func (e *etcdKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := e.client.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

func (e *etcdKV) Delete(ctx context.Context, key string) error {
	_, err := e.client.Delete(ctx, key)
	return err
}

func (e *etcdKV) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	resp, err := e.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(resp.Kvs))
	for i, kv := range resp.Kvs {
		keys[i] = string(kv.Key)
	}
	return keys, nil
}

// --- zookeeper ---

// zkKV stores values as znodes, creating parent path segments on demand
// since zookeeper (unlike consul/etcd) requires an explicit node per path
// component.
type zkKV struct{ conn *zk.Conn }

func (z *zkKV) ensurePath(path string) error {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	cur := ""
	for _, seg := range segs[:len(segs)-1] {
		cur += "/" + seg
		exists, _, err := z.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := z.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

func (z *zkKV) Put(_ context.Context, key string, value []byte) error {
	path := "/" + key
	if err := z.ensurePath(path); err != nil {
		return err
	}
	exists, stat, err := z.conn.Exists(path)
	if err != nil {
		return err
	}
	if !exists {
		_, err = z.conn.Create(path, value, 0, zk.WorldACL(zk.PermAll))
		return err
	}
	_, err = z.conn.Set(path, value, stat.Version)
	return err
}

func (z *zkKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, _, err := z.conn.Get("/" + key)
	if err == zk.ErrNoNode {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (z *zkKV) Delete(_ context.Context, key string) error {
	err := z.conn.Delete("/"+key, -1)
	if err == zk.ErrNoNode {
		return nil
	}
	return err
}

func (z *zkKV) ListKeys(_ context.Context, prefix string) ([]string, error) {
	path := "/" + strings.TrimSuffix(prefix, "/")
	children, _, err := z.conn.Children(path)
	if err == zk.ErrNoNode {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(children))
	for i, c := range children {
		keys[i] = strings.TrimPrefix(path, "/") + "/" + c
	}
	return keys, nil
}
