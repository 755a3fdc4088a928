package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/app?sslmode=disable", migrateURL("postgres://u:p@db:5432/app?sslmode=disable"))
	assert.Equal(t, "pgx5://db/app", migrateURL("postgresql://db/app"))
	assert.Equal(t, "pgx5://db/app", migrateURL("pgx5://db/app"))
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := postgresMigrations.ReadDir("migrations/postgres")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_init.up.sql")
	assert.Contains(t, names, "000001_init.down.sql")

	up, err := postgresMigrations.ReadFile("migrations/postgres/000001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "UNIQUE (bot_id, chat_id)")
}
