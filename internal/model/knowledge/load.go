package knowledge

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

var (
	defaultOnce sync.Once
	defaultBase *Base
)

// Default returns the knowledge base compiled into the binary.
func Default() *Base {
	defaultOnce.Do(func() {
		b, err := Load(bytes.NewReader(seedYAML))
		if err != nil {
			panic(fmt.Sprintf("embedded knowledge seed is invalid: %v", err))
		}
		defaultBase = b
	})
	return defaultBase
}

// Load decodes a YAML knowledge definition and validates it.
func Load(r io.Reader) (*Base, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode knowledge: %w", err)
	}
	return New(def)
}

// LoadFile reads a knowledge definition from disk. An empty path yields Default().
func LoadFile(path string) (*Base, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge file: %w", err)
	}
	defer f.Close()

	b, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}
