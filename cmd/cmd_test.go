package cmd

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"BoardKP/roboflow"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	// never pick up a developer's .env or boardkp.yaml
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func buildIndex(t *testing.T, root string, n int) (index, images string) {
	t.Helper()
	images = filepath.Join(root, "samples")
	var entries []string
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("s%02d.jpg", i)
		writeFile(t, filepath.Join(images, name), "jpeg")
		entries = append(entries, fmt.Sprintf(`{
		  "fileName": %q,
		  "annotation": {"x": 0.%02d, "y": 0.5},
		  "calibrationPoints": [
		    {"x": 0.1, "y": 0.5}, {"x": 0.5, "y": 0.9}, {"x": 0.9, "y": 0.5}, {"x": 0.5, "y": 0.1}]
		}`, name, i))
	}
	index = filepath.Join(root, "index.json")
	writeFile(t, index, "["+strings.Join(entries, ",")+"]")
	return index, images
}

func TestExportYolo(t *testing.T) {
	root := t.TempDir()
	index, images := buildIndex(t, root, 10)
	out := filepath.Join(root, "yolo")

	stdout, err := run(t, "export-yolo", "--index", index, "--images-dir", images, "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Exported 8 train / 2 val samples")
	assert.FileExists(t, filepath.Join(out, "dart-tip.yaml"))
}

func TestExportKp_ConfigSection(t *testing.T) {
	root := t.TempDir()
	index, images := buildIndex(t, root, 10)
	out := filepath.Join(root, "kp")
	cfg := filepath.Join(root, "boardkp.yaml")
	writeFile(t, cfg, fmt.Sprintf("out: %s\ntrain: 0.9\nexport-kp:\n  train: 0.5\n", out))

	stdout, err := run(t, "--config", cfg, "export-kp", "--index", index, "--images-dir", images)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Exported 5 train / 5 val samples")
	assert.FileExists(t, filepath.Join(out, "meta.json"))
}

func TestExportKp_EnvOverridesDefault(t *testing.T) {
	root := t.TempDir()
	index, images := buildIndex(t, root, 10)
	t.Setenv("BOARDKP_TRAIN", "0.3")

	stdout, err := run(t, "export-kp", "--index", index, "--images-dir", images, "--out", filepath.Join(root, "kp"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Exported 3 train / 7 val samples")
}

func TestValidationErrors(t *testing.T) {
	t.Run("missing flags", func(t *testing.T) {
		_, err := run(t, "export-yolo")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `index: failed "required"`)
		assert.Contains(t, err.Error(), `images-dir: failed "required"`)
	})
	t.Run("ratio out of range", func(t *testing.T) {
		_, err := run(t, "export-kp", "--index", "i", "--images-dir", "d", "--out", "o", "--train", "1.5")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `train: failed "lte"`)
	})
	t.Run("remap names its flags", func(t *testing.T) {
		_, err := run(t, "remap", "--map", "a:b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `in: failed "required"`)
		assert.Contains(t, err.Error(), `out: failed "required"`)
	})
	t.Run("train epochs", func(t *testing.T) {
		_, err := run(t, "train", "--data", "d", "--backbone", "b.onnx", "--epochs", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `epochs: failed "gt"`)
	})
}

func TestFlagName(t *testing.T) {
	got := []string{flagName("ImagesDir"), flagName("Index"), flagName("AugCopies"), flagName("Src"), flagName("CalClasses")}
	want := []string{"images-dir", "index", "aug-copies", "in", "cal-classes"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("flagName mismatch (-want +got):\n%s", diff)
	}
}

func TestRemap(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "data.yaml"), "names: ['tip', 'dart', 'board']\n")
	writeFile(t, filepath.Join(src, "train", "images", "a.jpg"), "jpg")
	writeFile(t, filepath.Join(src, "train", "labels", "a.txt"), "0 0.5 0.5 0.1 0.1\n1 0.2 0.2 0.1 0.1\n2 0.5 0.5 0.9 0.9\n")
	dst := filepath.Join(t.TempDir(), "out")

	stdout, err := run(t, "remap", "--in", src, "--out", dst, "--map", "tip:dart_tip,dart:dart_tip")
	require.NoError(t, err)
	assert.Contains(t, stdout, "train: 1 files")

	data, err := os.ReadFile(filepath.Join(dst, "train", "labels", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0 0.5 0.5 0.1 0.1\n0 0.2 0.2 0.1 0.1\n", string(data))
}

func TestDownload(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		t.Setenv(APIKeyEnv, "")
		_, err := run(t, "download", "--workspace", "w", "--project", "p", "--version", "1", "--out", t.TempDir())
		assert.ErrorIs(t, err, roboflow.ErrMissingAPIKey)
	})

	t.Run("key from dotenv", func(t *testing.T) {
		// godotenv never overrides a variable that exists, even empty
		t.Setenv(APIKeyEnv, "")
		require.NoError(t, os.Unsetenv(APIKeyEnv))
		var archive bytes.Buffer
		zw := zip.NewWriter(&archive)
		w, err := zw.Create("data.yaml")
		require.NoError(t, err)
		_, err = w.Write([]byte("names: ['tip']\n"))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		var srv *httptest.Server
		mux := http.NewServeMux()
		mux.HandleFunc("/w/p/2/yolov8", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "from-dotenv", r.URL.Query().Get("api_key"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"export": {"link": "` + srv.URL + `/ds.zip"}}`))
		})
		mux.HandleFunc("/ds.zip", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(archive.Bytes())
		})
		srv = httptest.NewServer(mux)
		defer srv.Close()

		dir := t.TempDir()
		envFile := filepath.Join(dir, ".env")
		writeFile(t, envFile, APIKeyEnv+"=from-dotenv\n")
		out := filepath.Join(dir, "ds")

		root := NewRootCmd()
		var buf bytes.Buffer
		root.SetOut(&buf)
		root.SetArgs([]string{"--env-file", envFile, "download",
			"--workspace", "w", "--project", "p", "--version", "2", "--out", out, "--base-url", srv.URL})
		require.NoError(t, root.ExecuteContext(context.Background()))
		assert.Contains(t, buf.String(), "Downloaded to: "+out)
		assert.FileExists(t, filepath.Join(out, "data.yaml"))
	})
}
