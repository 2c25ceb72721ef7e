package migrate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/db"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{File: filepath.Join(t.TempDir(), "donna.db")})
	require.NoError(t, err)
	defer conn.Close()

	ran, err := Migrate(conn)
	require.NoError(t, err)
	require.NotEmpty(t, ran)
	assert.Equal(t, 1, ran[0].Version)

	ran, err = Migrate(conn)
	require.NoError(t, err)
	assert.Empty(t, ran)

	status, err := Status(conn)
	require.NoError(t, err)
	for _, m := range status {
		assert.NotEmpty(t, m.AppliedAt, m.Name)
	}

	_, err = conn.Exec(`INSERT INTO projects(id,display_name,priority_tier,created_at) VALUES ('a','A','always','now')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO projects(id,display_name,priority_tier,created_at) VALUES ('b','B','always','now')`)
	assert.Error(t, err, "second active always project must be rejected by the schema")
}
