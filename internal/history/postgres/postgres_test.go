package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/minekeeper/minekeeper/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	events := []history.Event{
		{
			Type:       history.EventLaunch,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Name: "smp", PID: 12345, State: "starting"},
		},
		{
			Type:       history.EventReady,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Name: "smp", PID: 12345, State: "online", Detail: "Done (8.2s)!"},
		},
		{
			Type:       history.EventCrash,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Name: "smp", PID: 12345, State: "offline", ExitCode: 137, Restarts: 1},
		},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM server_history WHERE name = $1`, "smp").Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != len(events) {
		t.Fatalf("expected %d rows, got %d", len(events), count)
	}

	var exitCode int
	err = sink.db.QueryRowContext(ctx,
		`SELECT exit_code FROM server_history WHERE event = $1`,
		string(history.EventCrash)).Scan(&exitCode)
	if err != nil {
		t.Fatalf("Failed to read crash row: %v", err)
	}
	if exitCode != 137 {
		t.Fatalf("expected exit_code 137, got %d", exitCode)
	}
}

func TestPostgresSinkEmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
