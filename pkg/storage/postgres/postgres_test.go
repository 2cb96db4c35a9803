package postgres

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/relay/pkg/orchestrator"
	"github.com/rhuss/relay/pkg/storage/storagetest"
)

func init() {
	// Point testcontainers at the podman socket when DOCKER_HOST is unset.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			if sock := strings.TrimSpace(string(out)); sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// testDSN starts one PostgreSQL container for the package and returns its
// connection string. Tests are skipped without a container runtime.
func testDSN(t *testing.T) string {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	if _, err := exec.LookPath("podman"); err != nil {
		if _, err := exec.LookPath("docker"); err != nil {
			t.Skip("neither podman nor docker found, skipping integration tests")
		}
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := pgmodule.Run(ctx,
			"postgres:16-alpine",
			pgmodule.WithDatabase("relay_test"),
			pgmodule.WithUsername("test"),
			pgmodule.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			containerErr = err
			return
		}
		containerDSN, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", containerErr)
	}
	return containerDSN
}

// setupTestDB returns a migrated store over empty tables.
func setupTestDB(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := New(ctx, Config{
		DSN:            testDSN(t),
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := store.pool.Exec(ctx, "TRUNCATE requests CASCADE"); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
	return store
}

func TestPostgres_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) orchestrator.TraceStore {
		return setupTestDB(t)
	})
}

func TestPostgres_MigrationsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	// A second run must find every version recorded and apply nothing.
	if err := store.migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	var count int
	if err := store.pool.QueryRow(ctx, "SELECT count(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("schema_migrations rows = %d, want %d", count, len(migrations))
	}
}

func TestPostgres_StepsStoredAsJSONB(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	req := storagetest.NewRequest("qa", "q", time.Now())
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := store.SavePlan(ctx, req.ID, storagetest.TwoStepPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	var agent string
	err := store.pool.QueryRow(ctx,
		"SELECT steps->1->>'agent_name' FROM plans WHERE request_id = $1", req.ID,
	).Scan(&agent)
	if err != nil {
		t.Fatalf("querying jsonb: %v", err)
	}
	if agent != "qa_agent" {
		t.Errorf("steps[1].agent_name = %q, want %q", agent, "qa_agent")
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations")
	}
	if migrations[0].version != 1 {
		t.Errorf("first migration version = %d, want 1", migrations[0].version)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].version <= migrations[i-1].version {
			t.Errorf("migrations not ordered: %s after %s", migrations[i].name, migrations[i-1].name)
		}
	}
	if !strings.Contains(migrations[0].sql, "CREATE TABLE IF NOT EXISTS step_results") {
		t.Error("first migration does not create step_results")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{MinConns: 50, MaxConns: 10}
	cfg.defaults()
	if cfg.MinConns != 10 {
		t.Errorf("MinConns = %d, want clamp to MaxConns 10", cfg.MinConns)
	}
	if cfg.MaxConnLifetime != 5*time.Minute {
		t.Errorf("MaxConnLifetime = %v, want 5m", cfg.MaxConnLifetime)
	}
}
