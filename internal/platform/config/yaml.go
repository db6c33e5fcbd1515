package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAMLFile decodes the YAML document at path into target. Unknown keys
// are rejected so typos in hand-written files surface at startup.
func LoadYAMLFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return DecodeYAML(data, target)
}

// DecodeYAML decodes a YAML document into target with strict field checks.
func DecodeYAML(data []byte, target any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}
