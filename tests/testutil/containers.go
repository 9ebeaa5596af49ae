package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDBContainer holds the PostgreSQL test container
type TestDBContainer struct {
	Container  *postgres.PostgresContainer
	ConnString string
	Pool       *pgxpool.Pool
}

// SetupTestDBContainer starts a PostgreSQL test container
func SetupTestDBContainer(ctx context.Context, t *testing.T) (*TestDBContainer, error) {
	t.Helper()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("entitlement_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &TestDBContainer{
		Container:  pgContainer,
		ConnString: connString,
		Pool:       pool,
	}, nil
}

// Teardown cleans up the test container
func (tc *TestDBContainer) Teardown(ctx context.Context, t *testing.T) {
	t.Helper()
	if tc.Pool != nil {
		tc.Pool.Close()
	}
	if tc.Container != nil {
		if err := tc.Container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}
}
