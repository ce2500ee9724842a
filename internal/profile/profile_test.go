// ABOUTME: Tests for identity profile storage and lookup.
// ABOUTME: Uses KEEP_HOME to point the profiles file at a temp directory.

package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLookup(t *testing.T) {
	t.Setenv("KEEP_HOME", t.TempDir())

	require.NoError(t, Save("alice", Profile{Src: "bot:alice", KeyFile: "/keys/alice"}))
	require.NoError(t, Save("bob", Profile{Src: "bot:bob"}))

	p, err := Lookup("alice")
	require.NoError(t, err)
	assert.Equal(t, "bot:alice", p.Src)
	assert.Equal(t, "/keys/alice", p.KeyFile)

	profiles, err := Load()
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}

func TestSave_OverwritesExisting(t *testing.T) {
	t.Setenv("KEEP_HOME", t.TempDir())

	require.NoError(t, Save("alice", Profile{Src: "bot:alice"}))
	require.NoError(t, Save("alice", Profile{Src: "bot:alice2"}))

	p, err := Lookup("alice")
	require.NoError(t, err)
	assert.Equal(t, "bot:alice2", p.Src)
}

func TestLookup_Missing(t *testing.T) {
	t.Setenv("KEEP_HOME", t.TempDir())

	_, err := Lookup("ghost")
	assert.ErrorContains(t, err, "not found")
}

func TestLoad_MissingFileYieldsEmpty(t *testing.T) {
	t.Setenv("KEEP_HOME", t.TempDir())

	profiles, err := Load()
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestLoad_TOMLFormat(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KEEP_HOME", dir)

	content := `
[profiles.weather]
src = "bot:weather"
key_file = "/keys/weather_ed25519"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, File), []byte(content), 0600))

	p, err := Lookup("weather")
	require.NoError(t, err)
	assert.Equal(t, "bot:weather", p.Src)
	assert.Equal(t, "/keys/weather_ed25519", p.KeyFile)
}

func TestLoad_BadTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KEEP_HOME", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, File), []byte("[broken"), 0600))

	_, err := Load()
	assert.Error(t, err)
}
