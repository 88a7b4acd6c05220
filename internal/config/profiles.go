package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"go.ngs.io/prayer-api/internal/domain"
)

// ProfilesFile is the YAML layout of PROFILES_PATH.
type ProfilesFile struct {
	Profiles []domain.CalculationProfile `yaml:"profiles"`
}

// LoadProfiles reads custom calculation profiles, e.g. a mosque's own
// angles and ihtiyat bias. An empty path yields no profiles.
func LoadProfiles(path string) ([]domain.CalculationProfile, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseProfiles(b)
}

// ParseProfiles decodes and validates a profiles document.
func ParseProfiles(b []byte) ([]domain.CalculationProfile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var f ProfilesFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Profiles))
	for i := range f.Profiles {
		p := &f.Profiles[i]
		p.Method = domain.Method(strings.TrimSpace(string(p.Method)))
		if p.Method == "" {
			return nil, fmt.Errorf("profiles[%d].name is required", i)
		}
		if _, err := domain.ParseMethod(string(p.Method)); err == nil {
			return nil, fmt.Errorf("profiles[%d].name %q collides with a standard method", i, p.Method)
		}
		key := strings.ToLower(string(p.Method))
		if seen[key] {
			return nil, fmt.Errorf("profiles[%d].name %q is duplicated", i, p.Method)
		}
		seen[key] = true

		if p.AsrFactor == 0 {
			p.AsrFactor = domain.AsrStandard
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profiles[%d]: %w", i, err)
		}
	}
	return f.Profiles, nil
}
