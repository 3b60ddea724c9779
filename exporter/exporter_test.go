package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"BoardKP/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
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
		  "settingsSnapshot": {"calibrationPoints": [
		    {"x": 0.5, "y": 0.1}, {"x": 0.9, "y": 0.5}, {"x": 0.5, "y": 0.9}, {"x": 0.1, "y": 0.5}]}
		}`, name, i))
	}
	// neither annotation nor calibration
	entries = append(entries, `{"fileName": "junk.jpg"}`)
	index = filepath.Join(root, "index.json")
	writeFile(t, index, "["+strings.Join(entries, ",")+"]")
	return index, images
}

func TestExportYolo(t *testing.T) {
	root := t.TempDir()
	index, images := buildIndex(t, root, 10)
	out := filepath.Join(root, "out")

	counts, err := ExportYolo(IndexOptions{Index: index, ImagesDir: images, Out: out, Train: 0.8, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, SplitCounts{Train: 8, Val: 2}, counts)
	assert.Equal(t, 8, countFiles(t, filepath.Join(out, "images", "train")))
	assert.Equal(t, 2, countFiles(t, filepath.Join(out, "labels", "val")))

	lbl, err := os.ReadFile(filepath.Join(out, "labels", "train", "s03.txt"))
	if err != nil {
		lbl, err = os.ReadFile(filepath.Join(out, "labels", "val", "s03.txt"))
	}
	require.NoError(t, err)
	assert.Equal(t, "0 0.030000 0.500000 0.020000 0.020000\n", string(lbl))

	names, err := dataset.LoadNames(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"dart_tip"}, names)
}

func TestExportYolo_NoSamples(t *testing.T) {
	root := t.TempDir()
	index := filepath.Join(root, "index.json")
	writeFile(t, index, `[{"fileName": "a.jpg"}]`)
	_, err := ExportYolo(IndexOptions{Index: index, ImagesDir: root, Out: filepath.Join(root, "out"), Train: 0.8})
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestExportKeypoints(t *testing.T) {
	root := t.TempDir()
	index, images := buildIndex(t, root, 7)
	out := filepath.Join(root, "out")

	counts, err := ExportKeypoints(IndexOptions{Index: index, ImagesDir: images, Out: out, Train: 0.85, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, 7, counts.Train+counts.Val)
	assert.Equal(t, 5, counts.Train)

	raw, err := os.ReadFile(filepath.Join(out, "meta.json"))
	require.NoError(t, err)
	var meta KeypointMeta
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, [4]string{"20_top", "6_right", "3_bottom", "11_left"}, meta.Order)
	assert.Equal(t, "x20 y20 x6 y6 x3 y3 x11 y11", meta.Format)
	assert.Equal(t, counts.Train, meta.Train)
	assert.Equal(t, counts.Val, meta.Val)

	samples, err := dataset.ListKeypointSamples(filepath.Join(out, "images", "train"), filepath.Join(out, "labels", "train"))
	require.NoError(t, err)
	require.Len(t, samples, counts.Train)
	assert.Equal(t, [8]float64{0.5, 0.1, 0.9, 0.5, 0.5, 0.9, 0.1, 0.5}, samples[0].Values)
}

func TestParseClassList(t *testing.T) {
	got, err := ParseClassList("1, 2,,3 ,4")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, got)

	_, err = ParseClassList("1,x")
	assert.Error(t, err)
}

func TestExportKeypointsFromYolo(t *testing.T) {
	root := t.TempDir()
	data := filepath.Join(root, "yolo")
	// shuffled calibration boxes plus a dart (class 0) and a malformed row
	writeFile(t, filepath.Join(data, "train", "labels", "a.txt"),
		"2 0.9 0.5 0.02 0.02\n0 0.4 0.4 0.02 0.02\n4 0.1 0.5 0.02 0.02\nbad row\n1 0.5 0.1 0.02 0.02\n3 0.5 0.9 0.02 0.02\n")
	writeFile(t, filepath.Join(data, "train", "images", "a.png"), "png")
	// too few points
	writeFile(t, filepath.Join(data, "train", "labels", "b.txt"), "1 0.5 0.1 0.02 0.02\n2 0.9 0.5 0.02 0.02\n")
	writeFile(t, filepath.Join(data, "train", "images", "b.jpg"), "jpg")
	// no image
	writeFile(t, filepath.Join(data, "train", "labels", "c.txt"), "1 0.5 0.1 0.02 0.02\n")
	writeFile(t, filepath.Join(data, "valid", "labels", "d.txt"),
		"3 0.5 0.9 0.02 0.02\n1 0.5 0.1 0.02 0.02\n4 0.1 0.5 0.02 0.02\n2 0.9 0.5 0.02 0.02\n")
	writeFile(t, filepath.Join(data, "valid", "images", "d.webp"), "webp")

	out := filepath.Join(root, "kp")
	results, err := ExportKeypointsFromYolo(FromYoloOptions{Data: data, Out: out, CalClasses: []int{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []SplitResult{{Split: "train", Kept: 1}, {Split: "valid", Kept: 1}}, results)

	got, err := dataset.ReadKeypointLabel(filepath.Join(out, "train", "labels", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, [8]float64{0.5, 0.1, 0.9, 0.5, 0.5, 0.9, 0.1, 0.5}, got)
	assert.FileExists(t, filepath.Join(out, "train", "images", "a.png"))
	assert.NoFileExists(t, filepath.Join(out, "train", "labels", "b.txt"))
	assert.FileExists(t, filepath.Join(out, "valid", "images", "d.webp"))
}

func TestExportKeypointsFromYolo_Fatal(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		root := t.TempDir()
		_, err := ExportKeypointsFromYolo(FromYoloOptions{
			Data:       filepath.Join(root, "does-not-exist"),
			Out:        filepath.Join(root, "kp"),
			CalClasses: []int{1, 2, 3, 4},
		})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("no calibration points", func(t *testing.T) {
		root := t.TempDir()
		data := filepath.Join(root, "yolo")
		writeFile(t, filepath.Join(data, "train", "labels", "a.txt"), "0 0.4 0.4 0.02 0.02\n0 0.6 0.6 0.02 0.02\n")
		writeFile(t, filepath.Join(data, "train", "images", "a.jpg"), "jpg")

		results, err := ExportKeypointsFromYolo(FromYoloOptions{Data: data, Out: filepath.Join(root, "kp"), CalClasses: []int{1, 2, 3, 4}})
		assert.ErrorIs(t, err, ErrNoSamples)
		assert.Equal(t, []SplitResult{{Split: "train", Kept: 0}}, results)
	})
}

func TestExportKeypoints_MalformedEntrySkipped(t *testing.T) {
	root := t.TempDir()
	images := filepath.Join(root, "samples")
	writeFile(t, filepath.Join(images, "good.jpg"), "jpeg")
	writeFile(t, filepath.Join(images, "bad.jpg"), "jpeg")
	index := filepath.Join(root, "index.json")
	writeFile(t, index, `[
	  {"fileName": "good.jpg",
	   "calibrationPoints": [{"x":0.5,"y":0.1},{"x":0.9,"y":0.5},{"x":0.5,"y":0.9},{"x":0.1,"y":0.5}]},
	  {"fileName": "bad.jpg", "calibrationPoints": [1, 2, 3, 4]}
	]`)

	counts, err := ExportKeypoints(IndexOptions{Index: index, ImagesDir: images, Out: filepath.Join(root, "out"), Train: 1, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, SplitCounts{Train: 1, Val: 0}, counts)
}
