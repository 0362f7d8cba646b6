// Package factory builds connection pools from preferences and keeps them in a registry
// keyed by pool id.
package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/embedpool/pool"
	"github.com/fyerfyer/embedpool/pool/adapters"
	"github.com/fyerfyer/embedpool/prefs"
)

// Kind selects the pool implementation.
type Kind string

const (
	// KindSelfManaged is the pool.ConnectionPool implementation.
	KindSelfManaged Kind = "myown"

	// KindPuddle delegates pooling to puddle.
	KindPuddle Kind = "puddle"
)

// ErrUnknownKind is returned for pool types other than KindSelfManaged and KindPuddle.
var ErrUnknownKind = errors.New("unknown pool type")

// ParseKind parses a pool type name. An empty name selects KindSelfManaged.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindSelfManaged:
		return KindSelfManaged, nil
	case KindPuddle:
		return KindPuddle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// String returns the pool type name.
func (k Kind) String() string {
	return string(k)
}

type config struct {
	kind        Kind
	logger      logrus.FieldLogger
	poolOptions []pool.Option
	sqlite      []func(*adapters.SQLiteConfig)
}

// Option configures New and Open.
type Option func(*config)

// WithKind overrides the pool type read from db.pooltype in Open.
func WithKind(kind Kind) Option {
	return func(c *config) {
		c.kind = kind
	}
}

// WithLogger sets the logger used by the pool and its connection factory.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPoolOptions appends pool options applied after the ones derived from preferences.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(c *config) {
		c.poolOptions = append(c.poolOptions, opts...)
	}
}

// WithSQLiteConfig adjusts the connection factory configuration, for example to add an
// InitFunc or an open-rate limiter.
func WithSQLiteConfig(fn func(*adapters.SQLiteConfig)) Option {
	return func(c *config) {
		c.sqlite = append(c.sqlite, fn)
	}
}

func newConfig(opts []Option) *config {
	c := &config{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New builds a pool of the given kind over the embedded database described by p.
func New(kind Kind, p *prefs.Preferences, opts ...Option) (pool.Pool, error) {
	return newPool(kind, p, newConfig(opts))
}

func newPool(kind Kind, p *prefs.Preferences, c *config) (pool.Pool, error) {
	id, err := p.PoolID()
	if err != nil {
		return nil, err
	}
	maxConns, err := p.MaxConnections()
	if err != nil {
		return nil, err
	}
	reapInterval, err := p.ReapInterval()
	if err != nil {
		return nil, err
	}

	sqliteOpts := append([]func(*adapters.SQLiteConfig){func(sc *adapters.SQLiteConfig) {
		sc.Logger = c.logger.WithField("pool_id", id)
	}}, c.sqlite...)
	connFactory, err := adapters.FactoryFromPreferences(p, sqliteOpts...)
	if err != nil {
		return nil, err
	}

	poolOpts := append([]pool.Option{
		pool.WithPoolID(id),
		pool.WithMaxConnections(maxConns),
		pool.WithReapInterval(reapInterval),
		pool.WithTrace(p.Trace()),
		pool.WithLogger(c.logger),
	}, c.poolOptions...)

	c.logger.WithFields(logrus.Fields{
		"pool_id":     id,
		"pool_type":   kind,
		"preferences": p.String(),
	}).Info("creating connection pool")

	switch kind {
	case KindSelfManaged:
		return pool.NewPool(connFactory, poolOpts...), nil
	case KindPuddle:
		return adapters.NewPuddlePool(connFactory, poolOpts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Open loads preferences from source (a path, file: URL or http(s) URL) and returns the
// pool registered under their db.poolid, creating it if absent.
func Open(ctx context.Context, reg *pool.Registry, source string, opts ...Option) (pool.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := prefs.LoadURL(source)
	if err != nil {
		return nil, err
	}
	id, err := p.PoolID()
	if err != nil {
		return nil, err
	}

	c := newConfig(opts)
	kind := c.kind
	if kind == "" {
		if kind, err = ParseKind(p.PoolType()); err != nil {
			return nil, err
		}
	}

	return reg.GetOrCreate(id, func() (pool.Pool, error) {
		return newPool(kind, p, c)
	})
}
