package relation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/rom"
)

// Cached materializes a node through a rom.Cache. Results are stored as
// msgpack encoded tuples under a key built from the dataset restrictions, the
// node and its applied view; concurrent misses for the same key load once.
// Results that are not tuples, such as hydrated structs, are not cached, and
// neither are nodes reading a dataset that is not a Keyer.
type Cached struct {
	node  Node
	cache rom.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewCached returns n cached in cache for ttl. A zero ttl never expires.
func NewCached(n Node, cache rom.Cache, ttl time.Duration) *Cached {
	return &Cached{node: n, cache: cache, ttl: ttl}
}

// Node returns the cached node.
func (c *Cached) Node() Node { return c.node }

// Key returns the cache key of a call with args.
func (c *Cached) Key(args ...any) rom.CacheKey {
	key, _ := c.key(args)
	return key
}

// key reports false when a dataset of the node cannot describe its
// restrictions.
func (c *Cached) key(args []any) (rom.CacheKey, bool) {
	filter, ok := restrictions(c.node)
	keyArgs := make([]any, len(args))
	for i, a := range args {
		if l, ok := a.(*Loaded); ok {
			keyArgs[i] = l.PrimaryKeys()
			continue
		}
		keyArgs[i] = a
	}
	return rom.CacheKey{
		Dataset:  c.node.Name().Dataset(),
		Relation: c.node.Name().Key(),
		View:     fmt.Sprint(c.node),
		Filter:   filter,
		Args:     keyArgs,
	}, ok
}

// restrictions joins the dataset keys of n and of every node in its graph.
func restrictions(n Node) (string, bool) {
	var nodes []Node
	switch n := n.(type) {
	case *Graph:
		nodes = append([]Node{n.root}, n.nodes...)
	case *Combined:
		nodes = append([]Node{n.root}, n.nodes...)
	case *Wrap:
		nodes = append([]Node{n.root}, n.nodes...)
	default:
		k, ok := n.Relation().Dataset().(Keyer)
		if !ok {
			return "", false
		}
		return k.CacheKey()
	}
	parts := make([]string, len(nodes))
	for i, child := range nodes {
		key, ok := restrictions(child)
		if !ok {
			return "", false
		}
		parts[i] = key
	}
	return "(" + strings.Join(parts, ";") + ")", true
}

// Call returns the cached result of the node, loading and storing it on a miss.
func (c *Cached) Call(ctx context.Context, args ...any) (*Loaded, error) {
	ck, ok := c.key(args)
	if !ok {
		return c.node.Call(ctx, args...)
	}
	key := ck.String()
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("relation cache read failed", "key", key, "error", err)
	}
	if data != nil {
		collection, err := decodeTuples(data)
		if err == nil {
			return NewLoaded(c.node, collection), nil
		}
		slog.Warn("relation cache entry corrupt", "key", key, "error", err)
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		l, err := c.node.Call(ctx, args...)
		if err != nil {
			return nil, err
		}
		tuples, ok := rom.AsTuples(l.Collection())
		if !ok {
			return l, nil
		}
		data, err := msgpack.Marshal(tuples)
		if err != nil {
			slog.Warn("relation cache encode failed", "key", key, "error", err)
			return l, nil
		}
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			slog.Warn("relation cache write failed", "key", key, "error", err)
		}
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Loaded), nil
}

// Invalidate drops every cached entry of the node's dataset.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.cache.DeletePrefix(ctx, c.Key().Prefix())
}

func decodeTuples(data []byte) ([]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	collection := make([]any, len(rows))
	for i, row := range rows {
		collection[i] = rom.Tuple(row)
	}
	return collection, nil
}
