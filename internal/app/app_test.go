package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dallionking/donna-assistant/internal/config"
	"github.com/Dallionking/donna-assistant/internal/domain"
)

func TestOpenSeedAndSync(t *testing.T) {
	ws := t.TempDir()
	sigRoot := filepath.Join(ws, "sigmavue")
	require.NoError(t, os.MkdirAll(sigRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sigRoot, ".prd-status.json"),
		[]byte(`{"prds":[{"id":"auth","status":"in_progress","priority":"P0","progress":20},{"id":"billing","status":"not_started"}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "acme-status.yml"),
		[]byte("current_item_id: api\ncurrent_item_progress: 5\n"), 0o644))

	projects := `projects:
  - {id: sigmavue, display_name: Sigmavue, tier: always, root_path: "` + sigRoot + `"}
  - {id: acme, tier: client, status_file: "` + filepath.Join(ws, "acme-status.yml") + `"}
  - {id: side-quest, tier: rotating}
`
	yml := strings.Replace(config.GenerateDefault("UTC"), "projects: []\n", projects, 1)
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(yml), 0o644))

	e, conn, err := Open(ws, "", zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	res, err := Seed(ctx, e, "tester")
	require.NoError(t, err)
	assert.True(t, res.TemplateSeeded)
	require.Len(t, res.Registered, 3)
	assert.Equal(t, "Side Quest", res.Registered[2].DisplayName)

	again, err := Seed(ctx, e, "tester")
	require.NoError(t, err)
	assert.False(t, again.TemplateSeeded)
	assert.Empty(t, again.Registered)

	synced, err := SyncStatuses(ctx, e, "tester")
	require.NoError(t, err)
	byID := map[string]SyncResult{}
	for _, s := range synced {
		byID[s.ProjectID] = s
	}
	require.NotNil(t, byID["sigmavue"].Status)
	assert.Equal(t, "auth", byID["sigmavue"].Status.CurrentItemID)
	assert.Equal(t, domain.PhaseP0, byID["sigmavue"].Status.PhasePriority)
	require.NotNil(t, byID["acme"].Status)
	assert.Equal(t, "api", byID["acme"].Status.CurrentItemID)
	assert.NotEmpty(t, byID["side-quest"].Skipped)

	st, err := e.ProjectStatus(ctx, "sigmavue")
	require.NoError(t, err)
	assert.Equal(t, "billing", st.NextItemID)
}
