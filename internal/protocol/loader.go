package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// #region parse

// Format selects the decoder for a protocol document.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	}
	return 0, false
}

// ParseDefinitions decodes protocol definitions. YAML input may hold several
// documents separated by "---"; JSON input holds one object or an array.
func ParseDefinitions(data []byte, format Format) ([]Definition, error) {
	if format == FormatJSON {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var defs []Definition
			if err := json.Unmarshal(trimmed, &defs); err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			return defs, nil
		}
		var d Definition
		if err := json.Unmarshal(trimmed, &d); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return []Definition{d}, nil
	}

	var defs []Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var d Definition
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode yaml document %d: %w", len(defs), err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// #endregion parse

// #region load

// LoadFile registers every protocol in a file. Valid protocols are kept even
// when others in the same file are rejected; the rejections are joined into
// the returned error.
func LoadFile(reg *Registry, path string) (int, error) {
	format, ok := FormatFor(path)
	if !ok {
		return 0, fmt.Errorf("load %s: unsupported extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	return loadBytes(reg, path, data, format)
}

// LoadDir registers every .yaml, .yml and .json file in dir in file-name
// order. Subdirectories are not visited.
func LoadDir(reg *Registry, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("load protocol dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := FormatFor(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	total := 0
	var errs []error
	for _, name := range names {
		n, err := LoadFile(reg, filepath.Join(dir, name))
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// LoadBuiltins registers the embedded protocol library. The catch-all
// "default" protocol is registered last.
func LoadBuiltins(reg *Registry) (int, error) {
	names, err := BuiltinNames()
	if err != nil {
		return 0, err
	}
	total := 0
	var errs []error
	for _, name := range names {
		data, err := builtinFS.ReadFile("builtin/" + name)
		if err != nil {
			errs = append(errs, fmt.Errorf("read builtin %s: %w", name, err))
			continue
		}
		n, err := loadBytes(reg, name, data, FormatYAML)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// BuiltinNames lists the embedded protocol files in registration order.
func BuiltinNames() ([]string, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("list builtins: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func loadBytes(reg *Registry, source string, data []byte, format Format) (int, error) {
	defs, err := ParseDefinitions(data, format)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", source, err)
	}
	n := 0
	var errs []error
	for _, d := range defs {
		if err := reg.RegisterDefinition(d); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", source, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// #endregion load
