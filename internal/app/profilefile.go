// Package app provides application-layer orchestration services.
// It wires domain logic with infrastructure, never the reverse.
package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/apuctl/apuctl/internal/domain"
)

// ProfileFormat is the on-disk encoding of a profile file.
type ProfileFormat string

const (
	FormatYAML ProfileFormat = "yaml"
	FormatTOML ProfileFormat = "toml"
)

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (ProfileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: unsupported profile file extension %q (want .yaml, .yml or .toml)",
			domain.ErrProfileInvalid, filepath.Ext(path))
	}
}

// ParseProfile decodes and validates a profile document. A file without a
// name takes fallbackName.
func ParseProfile(data []byte, format ProfileFormat, fallbackName string) (domain.Profile, error) {
	var p domain.Profile
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("%w: parse yaml: %v", domain.ErrProfileInvalid, err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &p); err != nil {
			return p, fmt.Errorf("%w: parse toml: %v", domain.ErrProfileInvalid, err)
		}
	default:
		return p, fmt.Errorf("%w: unknown format %q", domain.ErrProfileInvalid, format)
	}
	if p.Name == "" {
		p.Name = fallbackName
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// ReadProfileFile loads a profile from a .yaml/.yml/.toml file. The file's
// base name is used when the document has no name.
func ReadProfileFile(path string) (domain.Profile, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return domain.Profile{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("read profile: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseProfile(data, format, base)
}

// EncodeProfile renders p in the given format.
func EncodeProfile(p domain.Profile, format ProfileFormat) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(p)
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(p); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// WriteProfileFile saves p to path, choosing the format by extension.
func WriteProfileFile(path string, p domain.Profile) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := EncodeProfile(p, format)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
