package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lists = `## == Lists ==
# List helpers.
### λ map
# :: (a -> b) -> [a] -> [b]
map = (f, xs) --> [f x for x in xs]
`

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	parseWorkers, parsePretty, parseTree = 0, false, false
	parseFlags = extractFlags{}
	verbose = false

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.toml")))
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	p := writeSource(t, dir, "lists.ls", lists)
	writeSource(t, dir, "notes.txt", "ignored")

	out, _, err := run(t, "parse", dir)
	require.NoError(t, err)

	var files []struct {
		File     string `json:"file"`
		Language string `json:"language"`
		Entities []struct {
			ID   string `json:"id"`
			File string `json:"file"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	require.Len(t, files, 1)
	assert.Equal(t, p, files[0].File)
	assert.Equal(t, "LiveScript", files[0].Language)
	require.Len(t, files[0].Entities, 2)
	assert.Equal(t, "g:Lists/map", files[0].Entities[1].ID)
	assert.Equal(t, p, files[0].Entities[1].File)
}

func TestParseCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "good.ls", lists)
	bad := writeSource(t, dir, "bad.js", "//// == A ==\n\n// .. orphan\n")

	out, _, err := run(t, "parse", dir)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 files failed", err.Error())

	var files []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	require.Len(t, files, 2)
	assert.Equal(t, bad, files[0]["file"])
	assert.Equal(t, "continuation_without_signature", files[0]["reason"])
	assert.Equal(t, float64(3), files[0]["line"])
}

func TestParseCommand_Tree(t *testing.T) {
	dir := t.TempDir()
	p := writeSource(t, dir, "lists.ls", lists)

	out, _, err := run(t, "parse", "--tree", p)
	require.NoError(t, err)
	assert.Equal(t, p+" (LiveScript)\n"+
		"  group g:Lists\n"+
		"    function g:Lists/map :: (a -> b) -> [a] -> [b]\n", out)
}

func TestParseCommand_NoFiles(t *testing.T) {
	_, _, err := run(t, "parse", t.TempDir())
	assert.EqualError(t, err, "no supported files found")
}

func TestLanguagesCommand(t *testing.T) {
	out, _, err := run(t, "languages")
	require.NoError(t, err)
	assert.Contains(t, out, "EXTENSION")
	assert.Regexp(t, `\.coffee\s+CoffeeScript\s+#`, out)
	assert.Regexp(t, `\.js\s+JavaScript\s+//`, out)
	assert.Regexp(t, `\.ls\s+LiveScript\s+#`, out)
}
