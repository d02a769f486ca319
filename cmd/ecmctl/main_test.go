package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useRepository points the CLI at a badger tree and a filesystem payload
// store below a temporary directory so state survives between invocations.
func useRepository(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "badger://"+filepath.Join(dir, "tree"))
	t.Setenv("STORAGE_URL", "file://"+filepath.Join(dir, "blobs"))
	t.Setenv("ECM_LANGUAGES", "en,de")
	t.Setenv("ECM_DEFAULT_LANGUAGE", "")
	t.Setenv("ECM_EVENT_LOGGING", "false")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestProvisionAndList(t *testing.T) {
	useRepository(t)

	out, err := execute(t, "--client", "radien", "provision")
	require.NoError(t, err)
	assert.Contains(t, out, "Client radien provisioned")

	out, err = execute(t, "ls", "-r", "/radien")
	require.NoError(t, err)
	for _, p := range []string{"/radien/documents", "/radien/html/en", "/radien/html/de", "/radien/notifications/de"} {
		assert.Contains(t, out, p)
	}
}

func TestPutGetAndVersions(t *testing.T) {
	dir := useRepository(t)

	_, err := execute(t, "--client", "radien", "provision")
	require.NoError(t, err)

	file := filepath.Join(dir, "comments.txt")
	require.NoError(t, os.WriteFile(file, []byte("first"), 0o644))
	out, err := execute(t, "--client", "radien", "put", file, "--versioning", "--view-id", "comments")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved /radien/documents/comments.txt")
	assert.Contains(t, out, "Version:  1.0")

	require.NoError(t, os.WriteFile(file, []byte("second"), 0o644))
	out, err = execute(t, "--client", "radien", "put", file, "--versioning", "--view-id", "comments")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:  1.1")

	out, err = execute(t, "versions", "/radien/documents/comments.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "1.0")
	assert.Contains(t, out, "1.1")

	out, err = execute(t, "get", "/radien/documents/comments.txt", "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	_, err = execute(t, "rmversion", "/radien/documents/comments.txt", "1.1")
	require.NoError(t, err)

	out, err = execute(t, "get", "/radien/documents/comments.txt", "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = execute(t, "find", "comments")
	require.NoError(t, err)
	assert.Contains(t, out, "/radien/documents/comments.txt")
}

func TestMkdirAndDelete(t *testing.T) {
	useRepository(t)

	_, err := execute(t, "--client", "radien", "provision")
	require.NoError(t, err)

	out, err := execute(t, "--client", "radien", "mkdir", "/projects/2024")
	require.NoError(t, err)
	assert.Contains(t, out, "/projects/2024")

	out, err = execute(t, "ls", "/radien/documents/projects/2024")
	require.NoError(t, err)
	assert.Contains(t, out, "No content found.")

	_, err = execute(t, "rm", "-y", "/radien/documents/projects")
	require.NoError(t, err)

	_, err = execute(t, "ls", "/radien/documents/projects")
	assert.Error(t, err)
}

func TestUnknownContentType(t *testing.T) {
	dir := useRepository(t)
	file := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := execute(t, "put", file, "--type", "video")
	assert.Error(t, err)
}

func TestBadEnvironment(t *testing.T) {
	useRepository(t)
	t.Setenv("DATABASE_URL", "mysql://localhost/ecm")

	_, err := execute(t, "ls")
	assert.Error(t, err)
}
