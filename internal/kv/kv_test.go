package kv

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every pooled connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sql":    NewSQLStore(setupTestDB(t), slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, store.Put(ctx, "hangup:alice:1", `{"v":1}`))
			require.NoError(t, store.Put(ctx, "hangup:alice:1", `{"v":2}`))

			got, err := store.Get(ctx, "hangup:alice:1")
			require.NoError(t, err)
			assert.Equal(t, `{"v":2}`, got, "put replaces the whole value")

			require.NoError(t, store.Delete(ctx, "hangup:alice:1"))
			require.NoError(t, store.Delete(ctx, "hangup:alice:1"), "deleting twice is not an error")

			_, err = store.Get(ctx, "hangup:alice:1")
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestStoreListByPrefix(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range []string{
				"hangup:bob:2",
				"hangup:alice:2",
				"hangup:alice:1",
				"hangup:Alice:9",
				"hangup_auth:alice",
				"hangup:al%:x",
			} {
				require.NoError(t, store.Put(ctx, key, "{}"))
			}

			keys, err := store.List(ctx, "hangup:alice:")
			require.NoError(t, err)
			assert.Equal(t, []string{"hangup:alice:1", "hangup:alice:2"}, keys)

			keys, err = store.List(ctx, "hangup:al%")
			require.NoError(t, err)
			assert.Equal(t, []string{"hangup:al%:x"}, keys, "wildcard characters match literally")

			keys, err = store.List(ctx, "hangup:")
			require.NoError(t, err)
			assert.Len(t, keys, 5)
			assert.NotContains(t, keys, "hangup_auth:alice")

			keys, err = store.List(ctx, "nothing:")
			require.NoError(t, err)
			assert.Empty(t, keys)
			assert.NotNil(t, keys)
		})
	}
}
