package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureScriptsWritesEntryPoints(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scripts")

	require.NoError(t, EnsureScripts(dir))

	for _, name := range []string{"marian_translate.py", "xtts_speak.py", "speaker_embed.py"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm(), name)
	}
	content, err := os.ReadFile(filepath.Join(dir, "marian_translate.py"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "MarianMTModel")
}

func TestEnsureScriptsKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	edited := filepath.Join(dir, "xtts_speak.py")
	mustWriteFile(t, edited, "# locally patched")

	require.NoError(t, EnsureScripts(dir))

	content, err := os.ReadFile(edited)
	require.NoError(t, err)
	assert.Equal(t, "# locally patched", string(content))
}
