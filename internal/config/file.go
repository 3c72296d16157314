package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// backend abstracts where non-secret config values come from.
type backend interface {
	GetString(key string) (val string, ok bool)
	GetInt(key string) (val int, ok bool)
}

// fileBackend reads flat key/value pairs from a JSON config file.
// A missing file is not an error; every lookup simply misses.
type fileBackend struct {
	values map[string]any
}

func newFileBackend(path string) (*fileBackend, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &fileBackend{values: map[string]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &fileBackend{values: values}, nil
}

func (f *fileBackend) GetString(key string) (string, bool) {
	v, ok := f.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (f *fileBackend) GetInt(key string) (int, bool) {
	v, ok := f.values[key]
	if !ok {
		return 0, false
	}
	// JSON numbers decode as float64.
	n, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(n), true
}
