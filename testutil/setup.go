package testutil

import (
	"testing"

	"github.com/kasuganosora/gen1sim/cache"
	dbadapter "github.com/kasuganosora/gen1sim/db"
	"github.com/kasuganosora/gen1sim/config"
	"github.com/kasuganosora/gen1sim/model"
	"github.com/kasuganosora/gen1sim/resource"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// Dex returns the embedded data tables.
func Dex(t *testing.T) *resource.Dex {
	t.Helper()
	d := resource.NewDex("")
	require.NoError(t, d.Load(), "Dex: Load")
	return d
}
