package docs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

const catalogYAML = `tasks:
  - id: T-1
    document_key: season1/ep03
    season_label: "Season 1"
    episode_label: "Episode 3"
    source_language: Korean
    target_language: English
    metadata:
      genre: fantasy
  - id: T-2
    document_key: season1/ep04
`

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	entry, err := catalog.Get("T-1")
	require.NoError(t, err)
	assert.Equal(t, "season1/ep03", entry.DocumentKey)
	assert.Equal(t, "Season 1", entry.SeasonLabel)
	assert.Equal(t, "fantasy", entry.Metadata["genre"])
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadCatalog_EntryWithoutID(t *testing.T) {
	_, err := LoadCatalogFromBytes([]byte("tasks:\n  - document_key: foo\n"))
	assert.Error(t, err)
}

func TestCatalog_GetUnknownTask(t *testing.T) {
	catalog, err := LoadCatalogFromBytes([]byte("tasks: []"))
	require.NoError(t, err)
	_, err = catalog.Get("T-404")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
