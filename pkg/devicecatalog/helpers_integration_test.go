//go:build integration

package devicecatalog_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/netassist/core/pkg/database"
)

func newTestClient(t *testing.T) *database.Client {
	ctx := context.Background()

	dsnCfg := database.Config{Database: "netassist_test", User: "test", Password: "test", SSLMode: "disable", MaxConns: 5, MinConns: 1}

	if url := os.Getenv("CI_DATABASE_URL"); url != "" {
		t.Skip("CI_DATABASE_URL path requires DSN parsing not exercised by this reference test")
	}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dsnCfg.Database),
		postgres.WithUsername(dsnCfg.User),
		postgres.WithPassword(dsnCfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsnCfg.Host = host
	dsnCfg.Port = port.Int()

	client, err := database.NewClient(ctx, dsnCfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}
