package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	DBConnKey   contextKey = "db_conn"
)

// Postgres identifiers cap at 63 bytes; the schema name carries a
// "tenant_" prefix on top of the id.
const maxTenantIDLen = 56

var tenantIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ResolveTenant normalizes a raw tenant id and rejects anything that could
// not name a schema.
func ResolveTenant(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" || len(id) > maxTenantIDLen || !tenantIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid tenant identifier %q", raw)
	}
	return id, nil
}

func schemaFor(tenantID string) string {
	return "tenant_" + tenantID
}

// TenantMiddleware pins a pooled connection for the request and points its
// search_path at the tenant schema. Every repository call downstream resolves
// this connection through ConnFromContext, so all queries in a request see the
// same tenant.
func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID, err := ResolveTenant(requestedTenant(c, defaultTenant))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			path := pgx.Identifier{schemaFor(tenantID)}.Sanitize() + ", shared, public"
			if _, err := conn.Exec(ctx, "SET search_path TO "+path); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "tenant resolution failed")
			}

			ctx = context.WithValue(ctx, TenantIDKey, tenantID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)

			return next(c)
		}
	}
}

// requestedTenant picks the tenant the request asks for. The JWT claim wins
// so an authenticated caller cannot hop tenants with a header.
func requestedTenant(c echo.Context, defaultTenant string) string {
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}
	if tid := c.QueryParam("tenant_id"); tid != "" {
		return tid
	}
	return defaultTenant
}

// ConnFromContext retrieves the tenant-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TenantFromContext retrieves the tenant ID from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}

// CreateTenantSchema creates the schema for a tenant and runs all migrations
// against it. If migrationsDir is empty, migrations are skipped.
func CreateTenantSchema(ctx context.Context, pool *pgxpool.Pool, tenantID string, migrationsDir string) error {
	id, err := ResolveTenant(tenantID)
	if err != nil {
		return err
	}
	schema := schemaFor(id)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize())
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}
