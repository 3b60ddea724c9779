package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrNoNames is returned when no manifest in a dataset root declares class names.
var ErrNoNames = errors.New("could not find dataset names, provide a data.yaml with 'names'")

// Manifest is the YOLO dataset description file.
type Manifest struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names,flow"`
}

// WriteManifest writes m to path with a leading comment line.
func WriteManifest(path, comment string, m Manifest) error {
	body, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	out := append([]byte("# "+comment+"\n"), body...)
	return WriteFileAtomic(path, out)
}

// LoadNames returns the class names of the first *.yaml or *.yml file in root that declares
// them, either as a list or as an index-keyed map.
func LoadNames(root string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, err
		}
		sort.Strings(m)
		files = append(files, m...)
	}
	for _, f := range files {
		names, err := namesFromFile(f)
		if err != nil || names == nil {
			continue
		}
		return names, nil
	}
	return nil, ErrNoNames
}

func namesFromFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := doc.Names.Decode(&names); err != nil {
			return nil, err
		}
		return names, nil
	case yaml.MappingNode:
		var byIdx map[string]string
		if err := doc.Names.Decode(&byIdx); err != nil {
			return nil, err
		}
		keys := make([]int, 0, len(byIdx))
		for k := range byIdx {
			i, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("names key %q is not an index", k)
			}
			keys = append(keys, i)
		}
		sort.Ints(keys)
		names := make([]string, 0, len(keys))
		for _, k := range keys {
			names = append(names, byIdx[strconv.Itoa(k)])
		}
		return names, nil
	default:
		return nil, nil
	}
}
