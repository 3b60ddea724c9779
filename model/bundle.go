package model

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Bundle entry names, shared by the zip bundle and the saved model directory.
const (
	BackboneFile = "backbone.onnx"
	HeadFile     = "head.json"
	MetaFile     = "meta.json"
)

// ErrNotBundle is returned for archives missing a required entry.
var ErrNotBundle = errors.New("not a keypoint model bundle")

// Preprocess fixes how an image becomes the backbone input.
type Preprocess struct {
	InputSize int     `json:"inputSize"`
	Scale     float64 `json:"scale"`
	SwapRB    bool    `json:"swapRB"`
}

// Meta describes an exported model.
type Meta struct {
	Version    string     `json:"version"`
	Order      []string   `json:"order"`
	Input      string     `json:"input"`
	Output     string     `json:"output"`
	Preprocess Preprocess `json:"preprocess"`
	BestValMAE float64    `json:"bestValMae,omitempty"`
}

// Bundle is a backbone, its head and the metadata needed to run them.
type Bundle struct {
	Backbone []byte
	Head     *Head
	Meta     Meta
}

// EncodeHead renders h as JSON.
func EncodeHead(h *Head) ([]byte, error) {
	return json.Marshal(h.toFile())
}

// DecodeHead parses JSON written by EncodeHead.
func DecodeHead(data []byte) (*Head, error) {
	var f headFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode head: %w", err)
	}
	return f.toHead()
}

// SaveHead writes h to path atomically.
func SaveHead(path string, h *Head) error {
	data, err := EncodeHead(h)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

// LoadHead reads a head written by SaveHead.
func LoadHead(path string) (*Head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeHead(data)
}

// WriteBundle stores b as a single zip file at path.
func WriteBundle(path string, b Bundle) error {
	head, err := EncodeHead(b.Head)
	if err != nil {
		return err
	}
	meta, err := json.MarshalIndent(b.Meta, "", "  ")
	if err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer pending.Cleanup()
	zw := zip.NewWriter(pending)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{MetaFile, meta},
		{HeadFile, head},
		{BackboneFile, b.Backbone},
	} {
		w, err := zw.Create(e.name)
		if err != nil {
			return err
		}
		if _, err := w.Write(e.data); err != nil {
			return fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}

// ReadBundle loads a bundle written by WriteBundle.
func ReadBundle(path string) (Bundle, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("open bundle: %w", err)
	}
	defer r.Close()

	entries := map[string][]byte{}
	for _, f := range r.File {
		switch f.Name {
		case BackboneFile, HeadFile, MetaFile:
		default:
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Bundle{}, err
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return Bundle{}, fmt.Errorf("read %s: %w", f.Name, err)
		}
		entries[f.Name] = data
	}
	return fromEntries(entries)
}

// WriteDir stores b as a saved model directory.
func WriteDir(dir string, b Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	head, err := EncodeHead(b.Head)
	if err != nil {
		return err
	}
	meta, err := json.MarshalIndent(b.Meta, "", "  ")
	if err != nil {
		return err
	}
	for name, data := range map[string][]byte{BackboneFile: b.Backbone, HeadFile: head, MetaFile: meta} {
		if err := renameio.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// ReadDir loads a saved model directory.
func ReadDir(dir string) (Bundle, error) {
	entries := map[string][]byte{}
	for _, name := range []string{BackboneFile, HeadFile, MetaFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Bundle{}, err
		}
		entries[name] = data
	}
	return fromEntries(entries)
}

func fromEntries(entries map[string][]byte) (Bundle, error) {
	for _, name := range []string{BackboneFile, HeadFile, MetaFile} {
		if _, ok := entries[name]; !ok {
			return Bundle{}, fmt.Errorf("%w: missing %s", ErrNotBundle, name)
		}
	}
	head, err := DecodeHead(entries[HeadFile])
	if err != nil {
		return Bundle{}, err
	}
	var meta Meta
	if err := json.Unmarshal(entries[MetaFile], &meta); err != nil {
		return Bundle{}, fmt.Errorf("decode meta: %w", err)
	}
	return Bundle{Backbone: entries[BackboneFile], Head: head, Meta: meta}, nil
}
