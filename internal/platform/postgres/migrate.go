package postgres

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by Migrate.
func Schema() string {
	return schemaSQL
}

// Migrate applies the idempotent schema script.
func (p *Provider) Migrate(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return ErrProviderClosed
	}
	_, err := p.pool.Exec(ctx, schemaSQL)
	return WrapError("migrate", err)
}
