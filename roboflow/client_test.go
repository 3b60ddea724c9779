package roboflow

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient("", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestDownload(t *testing.T) {
	archive := zipBytes(t, map[string]string{
		"data.yaml":          "names: ['tip']\n",
		"train/labels/a.txt": "0 0.5 0.5 0.02 0.02\n",
		"train/images/a.jpg": "jpg",
		"valid/labels/b.txt": "0 0.1 0.1 0.02 0.02\n",
	})
	var polls atomic.Int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/ws/proj/3/yolov8", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		if polls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"progress": 0.5}`))
			return
		}
		_, _ = w.Write([]byte(`{"export": {"link": "` + srv.URL + `/file.zip"}}`))
	})
	mux.HandleFunc("/file.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient("secret", srv.URL)
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "ds")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	got, err := c.Download(ctx, Dataset{Workspace: "ws", Project: "proj", Version: 3, Format: "yolov8"}, out)
	require.NoError(t, err)
	assert.Equal(t, out, got)
	assert.Equal(t, int32(2), polls.Load())

	data, err := os.ReadFile(filepath.Join(out, "train", "labels", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0 0.5 0.5 0.02 0.02\n", string(data))
	assert.FileExists(t, filepath.Join(out, "data.yaml"))
}

func TestExportLink_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer srv.Close()

	c, err := NewClient("nope", srv.URL)
	require.NoError(t, err)
	_, err = c.ExportLink(context.Background(), Dataset{Workspace: "w", Project: "p", Version: 1, Format: "yolov8"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(path, zipBytes(t, map[string]string{"../evil.txt": "x"}), 0o644))
	_, err := Extract(path, filepath.Join(dir, "out"))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "evil.txt"))
}
