package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageExts are tried in order when looking up the image for a label stem.
var ImageExts = []string{".jpg", ".jpeg", ".png", ".webp"}

// ExportSplits are the split directory names produced by dataset hosting exports.
var ExportSplits = []string{"train", "valid", "val", "test"}

// IsImage reports whether the file name carries one of ImageExts.
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExts {
		if ext == e {
			return true
		}
	}
	return false
}

// Stem is the file name without directory and extension.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DirExists reports whether path is an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FindImage returns the first existing image for stem in dir, or "".
func FindImage(dir, stem string) string {
	for _, ext := range ImageExts {
		cand := filepath.Join(dir, stem+ext)
		if info, err := os.Stat(cand); err == nil && !info.IsDir() {
			return cand
		}
	}
	return ""
}

// SplitDirs locates the images/labels pair of a split. Both root/images/<split> and
// root/<split>/images layouts are accepted; ok is false when neither exists.
func SplitDirs(root, split string) (images, labels string, ok bool) {
	imgA := filepath.Join(root, "images", split)
	lblA := filepath.Join(root, "labels", split)
	if DirExists(imgA) && DirExists(lblA) {
		return imgA, lblA, true
	}
	imgB := filepath.Join(root, split, "images")
	lblB := filepath.Join(root, split, "labels")
	if DirExists(imgB) && DirExists(lblB) {
		return imgB, lblB, true
	}
	return "", "", false
}

// LabelFiles lists the *.txt files of dir in name order.
func LabelFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
