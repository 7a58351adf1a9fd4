package artifacts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBundle_CompressedRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	junit := writeFile(t, srcDir, "junit.xml", "<testsuites/>")
	stderr := writeFile(t, srcDir, "app-stderr.log", strings.Repeat("Renderer process crashed\n", 50))

	b := NewBundler(filepath.Join(t.TempDir(), "artifacts"), true, zap.NewNop())
	path, err := b.Bundle("run-42", []Entry{
		{Name: "junit.xml", Path: junit},
		{Name: "logs/app-stderr.log", Path: stderr},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "run-run-42.tar.br"), "got %s", path)

	names, err := List(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"junit.xml", "logs/app-stderr.log"}, names)

	data, err := Read(path, "logs/app-stderr.log")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("Renderer process crashed\n", 50), string(data))
}

func TestBundle_Uncompressed(t *testing.T) {
	srcDir := t.TempDir()
	report := writeFile(t, srcDir, "report.json", `{"suite":"compass-smoke"}`)

	b := NewBundler(filepath.Join(t.TempDir(), "artifacts"), false, zap.NewNop())
	path, err := b.Bundle("7", []Entry{{Path: report}})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "run-7.tar"), "got %s", path)

	// Name defaults to the source base name.
	data, err := Read(path, "report.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"suite":"compass-smoke"}`, string(data))
}

func TestBundle_SkipsMissingFiles(t *testing.T) {
	srcDir := t.TempDir()
	junit := writeFile(t, srcDir, "junit.xml", "<testsuites/>")

	b := NewBundler(filepath.Join(t.TempDir(), "artifacts"), true, zap.NewNop())
	path, err := b.Bundle("8", []Entry{
		{Name: "junit.xml", Path: junit},
		{Name: "screenshot.png", Path: filepath.Join(srcDir, "never-captured.png")},
	})
	require.NoError(t, err)

	names, err := List(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"junit.xml"}, names)
}

func TestBundle_CreatesArtifactDirectory(t *testing.T) {
	srcDir := t.TempDir()
	junit := writeFile(t, srcDir, "junit.xml", "<testsuites/>")

	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	b := NewBundler(dir, true, zap.NewNop())

	_, err := b.Bundle("9", []Entry{{Path: junit}})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRead_MissingEntry(t *testing.T) {
	srcDir := t.TempDir()
	junit := writeFile(t, srcDir, "junit.xml", "<testsuites/>")

	b := NewBundler(t.TempDir(), true, zap.NewNop())
	path, err := b.Bundle("10", []Entry{{Path: junit}})
	require.NoError(t, err)

	_, err = Read(path, "nope.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in bundle")
}
