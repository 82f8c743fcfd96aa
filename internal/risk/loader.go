package risk

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed models/*.yaml
var embeddedModels embed.FS

// ParseModel decodes a single YAML model document. Unknown keys are errors so
// that a typo cannot silently drop a factor parameter.
func ParseModel(data []byte) (Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Model
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Model{}, errors.New("empty model document")
		}
		return Model{}, err
	}
	return m, nil
}

// LoadFS registers every *.yaml file under dir in fsys, in file name order.
func LoadFS(reg *Registry, fsys fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := path.Ext(e.Name()); ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		p := path.Join(dir, name)
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return 0, err
		}
		m, err := ParseModel(data)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", p, err)
		}
		if err := reg.Register(m); err != nil {
			return 0, fmt.Errorf("%s: %w", p, err)
		}
	}
	return len(names), nil
}

// LoadBuiltin registers the model versions compiled into the binary.
func LoadBuiltin(reg *Registry) error {
	_, err := LoadFS(reg, embeddedModels, "models")
	return err
}

// LoadRegistry builds a registry from the built-in versions plus any extra
// versions in dir, then applies defaultVersion when set.
func LoadRegistry(dir, defaultVersion string) (*Registry, error) {
	reg := NewRegistry()
	if err := LoadBuiltin(reg); err != nil {
		return nil, fmt.Errorf("load built-in risk models: %w", err)
	}
	if dir = strings.TrimSpace(dir); dir != "" {
		if _, err := LoadFS(reg, os.DirFS(dir), "."); err != nil {
			return nil, fmt.Errorf("load risk models from %s: %w", dir, err)
		}
	}
	if defaultVersion = strings.TrimSpace(defaultVersion); defaultVersion != "" {
		if err := reg.SetDefault(defaultVersion); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
