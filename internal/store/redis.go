package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/earshot-fm/earshot/internal/config"
	"github.com/earshot-fm/earshot/internal/ops"
)

// Redis is a Store shared across processes. Documents live in plain keys
// as JSON; every write is published on a per-document and a per-collection
// pub/sub channel so other earshot instances see it pushed, not polled.
//
// Concurrent merge writes to the same document are last-write-wins over
// the whole document, matching the store contract.
type Redis struct {
	client *redis.Client
	log    *ops.Logger
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(cfg *config.RedisConfig, log *ops.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Redis{client: client, log: log.WithComponent("store")}, nil
}

func docKey(path string) string        { return "earshot:doc:" + path }
func colKey(collection string) string  { return "earshot:col:" + collection }
func docChan(path string) string       { return "earshot:docch:" + path }
func colChan(collection string) string { return "earshot:colch:" + collection }

// Subscribe implements Store.
func (r *Redis) Subscribe(ctx context.Context, path string) (<-chan Snapshot, error) {
	pubsub := r.client.Subscribe(ctx, docChan(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	ch := make(chan Snapshot, 1)

	go func() {
		defer close(ch)
		defer pubsub.Close()

		snap, err := r.snapshot(ctx, path)
		if err != nil {
			r.log.Warn("initial document read failed", "path", path, "error", err)
		} else {
			sendLatest(ch, snap)
		}

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload == "" {
					// Empty payload marks a deletion.
					sendLatest(ch, Snapshot{})
					continue
				}
				var fields map[string]any
				if err := json.Unmarshal([]byte(msg.Payload), &fields); err != nil {
					r.log.Warn("dropping undecodable document update", "path", path, "error", err)
					continue
				}
				sendLatest(ch, Snapshot{Exists: true, Fields: fields})
			}
		}
	}()

	return ch, nil
}

// SubscribeCollection implements Store.
func (r *Redis) SubscribeCollection(ctx context.Context, path string) (<-chan []Document, error) {
	pubsub := r.client.Subscribe(ctx, colChan(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to collection %s: %w", path, err)
	}

	ch := make(chan []Document, 1)

	deliver := func() {
		docs, err := r.collection(ctx, path)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.log.Warn("collection read failed", "collection", path, "error", err)
			}
			return
		}
		sendLatest(ch, docs)
	}

	go func() {
		defer close(ch)
		defer pubsub.Close()

		deliver()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				// Message carries only the changed doc id; re-read the
				// collection so subscribers get full snapshots.
				deliver()
			}
		}
	}()

	return ch, nil
}

// Write implements Store.
func (r *Redis) Write(ctx context.Context, path string, fields map[string]any, merge bool) error {
	next := cloneFields(fields)
	if merge {
		existing, err := r.snapshot(ctx, path)
		if err != nil {
			return err
		}
		if existing.Exists {
			merged := existing.Fields
			for k, v := range next {
				merged[k] = v
			}
			next = merged
		}
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", path, err)
	}

	collection, id := splitPath(path)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, docKey(path), data, 0)
	pipe.SAdd(ctx, colKey(collection), id)
	pipe.Publish(ctx, docChan(path), data)
	pipe.Publish(ctx, colChan(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return nil
}

// Delete implements Store. Deleting a missing document is a no-op.
func (r *Redis) Delete(ctx context.Context, path string) error {
	collection, id := splitPath(path)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, docKey(path))
	pipe.SRem(ctx, colKey(collection), id)
	pipe.Publish(ctx, docChan(path), "")
	pipe.Publish(ctx, colChan(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}

// QueryEquals implements Store.
func (r *Redis) QueryEquals(ctx context.Context, collection, field string, value any) ([]Document, error) {
	docs, err := r.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	var out []Document
	for _, doc := range docs {
		if got, ok := doc.Fields[field]; ok && valueEqual(got, value) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) snapshot(ctx context.Context, path string) (Snapshot, error) {
	data, err := r.client.Get(ctx, docKey(path)).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return Snapshot{Exists: true, Fields: fields}, nil
}

func (r *Redis) collection(ctx context.Context, collection string) ([]Document, error) {
	ids, err := r.client.SMembers(ctx, colKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}
	sort.Strings(ids) // set members come back unordered

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection + "/" + id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s documents: %w", collection, err)
	}

	docs := make([]Document, 0, len(ids))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue // member without a document; skip
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(data), &fields); err != nil {
			r.log.Warn("skipping undecodable document", "path", collection+"/"+ids[i], "error", err)
			continue
		}
		docs = append(docs, Document{ID: ids[i], Path: collection + "/" + ids[i], Fields: fields})
	}
	return docs, nil
}
