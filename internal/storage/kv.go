// Package storage implements the key-value backends that persist visitor reviews.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by operations on a backend that has been closed.
var ErrClosed = errors.New("storage: backend closed")

// ErrUnknownDriver is returned by Open for unsupported driver names.
var ErrUnknownDriver = errors.New("storage: unknown driver")

// KV is a string key-value store with last-write-wins semantics.
type KV interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Options configures Open.
type Options struct {
	Driver string
	// DSN is the sqlite path, postgres connection string or redis URL.
	DSN string
	// Prefix is applied to every key written by the backend.
	Prefix string
}

// Open builds a backend for the configured driver.
func Open(ctx context.Context, opts Options) (KV, error) {
	var (
		kv  KV
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		kv = NewMemory()
	case DriverSQLite:
		kv, err = NewSQLite(ctx, opts.DSN)
	case DriverPostgres:
		kv, err = NewPostgres(ctx, opts.DSN)
	case DriverRedis:
		kv, err = NewRedis(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if opts.Prefix != "" {
		kv = WithPrefix(kv, opts.Prefix)
	}
	return kv, nil
}

type prefixed struct {
	KV
	prefix string
}

// WithPrefix namespaces every key of kv under prefix. Closing the returned store closes kv.
func WithPrefix(kv KV, prefix string) KV {
	if prefix == "" {
		return kv
	}
	return &prefixed{KV: kv, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.KV.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.KV.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.KV.Delete(ctx, p.prefix+key)
}

type scoped struct {
	KV
}

// Scope returns a namespaced view of kv whose Close is a no-op, for per-request use over a
// shared backend.
func Scope(kv KV, namespace string) KV {
	return scoped{KV: WithPrefix(kv, namespace)}
}

func (scoped) Close() error { return nil }
