package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/serialization"
)

// LoadInitializationExpectations reads every file matching patterns, in
// pattern order and sorted within a pattern, and returns the expectations
// they declare. Relative patterns resolve against baseDir. A file matched by
// several patterns is read once.
func LoadInitializationExpectations(patterns []string, baseDir string) ([]*mock.Expectation, error) {
	var out []*mock.Expectation
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := expandGlob(ResolvePath(baseDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("expanding glob pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			if seen[path] {
				continue
			}
			seen[path] = true
			exps, err := LoadExpectationFile(path)
			if err != nil {
				return nil, err
			}
			out = append(out, exps...)
		}
	}
	return out, nil
}

// LoadExpectationFile reads a JSON or YAML file holding one expectation or
// a list of them.
func LoadExpectationFile(path string) ([]*mock.Expectation, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if isYAML(path) {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w in %s: %v", ErrInvalidYAML, path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("%w in %s: %v", ErrInvalidYAML, path, err)
		}
	}
	exps, err := serialization.DeserializeExpectations(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return exps, nil
}

// ResolvePath joins relative paths onto baseDir.
func ResolvePath(baseDir, path string) string {
	if baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// expandGlob uses doublestar for ** patterns and filepath.Glob otherwise.
// A pattern without wildcards names one file, which must exist.
func expandGlob(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		return []string{pattern}, nil
	}
	if strings.Contains(pattern, "**") || strings.Contains(pattern, "{") {
		return doublestar.FilepathGlob(pattern)
	}
	return filepath.Glob(pattern)
}
