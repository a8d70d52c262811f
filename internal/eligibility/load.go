package eligibility

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type matrixDocument struct {
	States map[string]StateConfig `yaml:"states"`
}

// Parse reads a YAML document of the form:
//
//	states:
//	  PA: {active: true, ron_allowed: true}
//	  OH: {active: true, ron_allowed: false, notes: "..."}
func Parse(data []byte) (*Matrix, error) {
	var doc matrixDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse state matrix: %w", err)
	}

	configs := make([]StateConfig, 0, len(doc.States))
	seen := make(map[string]string, len(doc.States))
	for code, c := range doc.States {
		norm := NormalizeState(code)
		if norm == "" {
			return nil, fmt.Errorf("parse state matrix: empty state code")
		}
		if prev, dup := seen[norm]; dup {
			return nil, fmt.Errorf("parse state matrix: state %q listed twice (%q, %q)", norm, prev, code)
		}
		seen[norm] = code
		c.Code = norm
		configs = append(configs, c)
	}
	return NewMatrix(configs), nil
}

func LoadFile(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state matrix %s: %w", path, err)
	}
	return Parse(data)
}

// ObjectGetter fetches a stored object by key.
type ObjectGetter interface {
	GetObject(ctx context.Context, objectKey string) ([]byte, error)
}

// LoadObject reads the matrix from object storage instead of the local filesystem.
func LoadObject(ctx context.Context, store ObjectGetter, key string) (*Matrix, error) {
	data, err := store.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch state matrix object %s: %w", key, err)
	}
	return Parse(data)
}
