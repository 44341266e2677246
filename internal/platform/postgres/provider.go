package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanko-field/commerce/internal/platform/config"
)

const defaultConnectTimeout = 10 * time.Second

// Provider owns the shared connection pool.
type Provider struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

// NewProvider parses the configuration, opens the pool and verifies connectivity.
func NewProvider(ctx context.Context, cfg config.DatabaseConfig) (*Provider, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("postgres: database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.StatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return NewProviderFromPool(pool, cfg.TxTimeout), nil
}

// NewProviderFromPool wraps an existing pool.
func NewProviderFromPool(pool *pgxpool.Pool, txTimeout time.Duration) *Provider {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &Provider{pool: pool, txTimeout: txTimeout}
}

// Pool exposes the underlying pool.
func (p *Provider) Pool() *pgxpool.Pool {
	return p.pool
}

// Ping verifies that a connection can be acquired.
func (p *Provider) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return ErrProviderClosed
	}
	return WrapError("ping", p.pool.Ping(ctx))
}

// Close releases the pool. It is safe to call more than once.
func (p *Provider) Close(context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

// ErrProviderClosed is returned when the provider has no pool.
var ErrProviderClosed = errors.New("postgres: provider is closed")
