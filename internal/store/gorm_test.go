package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func TestGormStore_Conformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("devices"),
		postgres.WithUsername("devices"),
		postgres.WithPassword("devices"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := OpenPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runStoreConformance(t, func(t *testing.T) Store {
		require.NoError(t, s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&deviceRecord{}).Error)
		require.NoError(t, s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&pendingRecord{}).Error)
		return s
	})
}
