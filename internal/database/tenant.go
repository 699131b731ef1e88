package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"restaurant-pos/internal/auth"
)

// SchemaName returns the schema holding a tenant's tables.
func SchemaName(tenantID string) (string, error) {
	if !auth.ValidTenantID(tenantID) {
		return "", fmt.Errorf("invalid tenant id %q", tenantID)
	}
	return "tenant_" + tenantID, nil
}

// pinSchema scopes every statement of tx to the tenant schema. The setting is
// transaction-local, so it never leaks back into the pool.
func pinSchema(ctx context.Context, tx pgx.Tx, schema string) error {
	_, err := tx.Exec(ctx, SetSearchPathSQL, schema)
	return err
}

// inTenant runs fn in a transaction scoped to tenantID's schema and commits
// when fn returns nil.
func (db *DB) inTenant(ctx context.Context, tenantID string, fn func(tx pgx.Tx) error) error {
	schema, err := SchemaName(tenantID)
	if err != nil {
		return err
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := pinSchema(ctx, tx, schema); err != nil {
		return fmt.Errorf("failed to set search_path: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
