package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestProvider(t *testing.T) (*LocalProvider, string) {
	t.Helper()
	dir := t.TempDir()
	provider, err := NewLocalProvider(dir)
	require.NoError(t, err)
	return provider, dir
}

func TestLocalProvider_PutObject(t *testing.T) {
	provider, baseDir := setupTestProvider(t)

	bucket := "test-bucket"
	key := "workspace-1/analysis.json"
	content := []byte(`{"task": "t"}`)

	err := provider.PutObject(context.Background(), bucket, key, bytes.NewReader(content))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(baseDir, bucket, key))
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalProvider_GetObject(t *testing.T) {
	provider, _ := setupTestProvider(t)

	bucket := "test-bucket"
	key := "workspace-1/test_data.json"
	content := []byte(`{"dataset": []}`)

	require.NoError(t, provider.PutObject(context.Background(), bucket, key, bytes.NewReader(content)))

	data, err := provider.GetObject(context.Background(), bucket, key)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	_, err = provider.GetObject(context.Background(), bucket, "workspace-1/missing.json")
	assert.Error(t, err)
}

func TestLocalProvider_ListObjects(t *testing.T) {
	provider, _ := setupTestProvider(t)

	bucket := "test-bucket"
	files := []string{"ws-1/analysis.json", "ws-1/test_data.json", "ws-1/research/page.json", "ws-2/analysis.json"}
	for _, file := range files {
		require.NoError(t, provider.PutObject(context.Background(), bucket, file, bytes.NewReader([]byte("content"))))
	}

	objects, err := provider.ListObjects(context.Background(), bucket, "ws-1")
	require.NoError(t, err)

	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, obj.Name)
		assert.Equal(t, int64(len("content")), obj.Size)
	}
	// nested research/ objects are not part of the top level listing
	assert.ElementsMatch(t, []string{"ws-1/analysis.json", "ws-1/test_data.json"}, names)

	objects, err = provider.ListObjects(context.Background(), bucket, "no-such-workspace")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalProvider_IterObjects(t *testing.T) {
	provider, _ := setupTestProvider(t)

	bucket := "test-bucket"
	files := []string{"ws-1/analysis.json", "ws-1/research/a.json", "ws-1/research/b.json"}
	for _, file := range files {
		require.NoError(t, provider.PutObject(context.Background(), bucket, file, bytes.NewReader([]byte("content"))))
	}

	var names []string
	provider.IterObjects(context.Background(), bucket, "ws-1")(func(obj Object, err error) bool {
		require.NoError(t, err)
		names = append(names, obj.Name)
		return true
	})
	assert.ElementsMatch(t, files, names)

	// stopping early must not yield further objects
	count := 0
	provider.IterObjects(context.Background(), bucket, "ws-1")(func(obj Object, err error) bool {
		require.NoError(t, err)
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestLocalProvider_DeletePrefix(t *testing.T) {
	provider, baseDir := setupTestProvider(t)

	bucket := "test-bucket"
	files := []string{"ws-1/analysis.json", "ws-1/research/a.json", "ws-2/analysis.json"}
	for _, file := range files {
		require.NoError(t, provider.PutObject(context.Background(), bucket, file, bytes.NewReader([]byte("content"))))
	}

	require.NoError(t, provider.DeletePrefix(context.Background(), bucket, "ws-1"))

	for _, file := range []string{"ws-1/analysis.json", "ws-1/research/a.json"} {
		_, err := os.Stat(filepath.Join(baseDir, bucket, file))
		assert.True(t, os.IsNotExist(err), "file %s should not exist", file)
	}

	_, err := os.Stat(filepath.Join(baseDir, bucket, "ws-2/analysis.json"))
	assert.NoError(t, err)
}
