// Package testhelpers provides a shared PostgreSQL container for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the image integration tests run against.
const PostgresImage = "postgres:16-alpine"

// SeedSchema is loaded into the test database once per run. It models the
// small sales dataset the pipeline tests ask questions about.
const SeedSchema = `
CREATE TABLE accounts (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	industry   TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE reps (
	id     SERIAL PRIMARY KEY,
	name   TEXT NOT NULL,
	region TEXT NOT NULL,
	email  TEXT
);

CREATE TABLE deals (
	id         SERIAL PRIMARY KEY,
	account_id INT NOT NULL REFERENCES accounts(id),
	rep_id     INT NOT NULL REFERENCES reps(id),
	revenue    NUMERIC(12,2) NOT NULL,
	closed_on  DATE NOT NULL,
	external   UUID NOT NULL DEFAULT gen_random_uuid()
);

CREATE VIEW rep_revenue AS
	SELECT r.name, SUM(d.revenue) AS revenue
	FROM reps r JOIN deals d ON d.rep_id = r.id
	GROUP BY r.name;

INSERT INTO accounts (name, industry) VALUES
	('Acme', 'manufacturing'), ('Globex', 'energy'), ('Initech', 'software');

INSERT INTO reps (name, region, email) VALUES
	('Ada', 'EMEA', 'ada@example.com'),
	('Grace', 'AMER', 'grace@example.com'),
	('Linus', 'EMEA', 'linus@example.com');

INSERT INTO deals (account_id, rep_id, revenue, closed_on)
SELECT 1 + (g % 3), 1 + (g % 3), (g * 100)::numeric, DATE '2024-01-01' + g
FROM generate_series(1, 30) AS g;
`

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "askdb_test",
			"POSTGRES_USER":     "askdb",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The entrypoint restarts the server once after init, so the
		// ready line appears twice.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://askdb:test_password@%s:%s/askdb_test?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ping test database: %w", err)
	}

	if _, err := pool.Exec(ctx, SeedSchema); err != nil {
		return nil, fmt.Errorf("failed to load seed schema: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}
