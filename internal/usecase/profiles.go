package usecase

import (
	"fmt"
	"sort"
	"strings"

	"go.ngs.io/prayer-api/internal/domain"
)

// ProfileRegistry resolves method names across the standard profiles and
// the custom ones loaded from configuration.
type ProfileRegistry struct {
	custom map[string]domain.CalculationProfile
}

// NewProfileRegistry returns a registry with the given custom profiles.
// Custom profiles are assumed validated.
func NewProfileRegistry(custom []domain.CalculationProfile) *ProfileRegistry {
	r := &ProfileRegistry{custom: make(map[string]domain.CalculationProfile, len(custom))}
	for _, p := range custom {
		r.custom[strings.ToLower(string(p.Method))] = p
	}
	return r
}

// Lookup finds a profile by case-insensitive name.
func (r *ProfileRegistry) Lookup(name string) (domain.CalculationProfile, error) {
	if m, err := domain.ParseMethod(name); err == nil {
		return domain.ProfileFor(m)
	}
	if p, ok := r.custom[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	return domain.CalculationProfile{}, fmt.Errorf("%w: %q", domain.ErrUnknownMethod, name)
}

// All returns the standard profiles followed by the custom ones, each group
// sorted by name.
func (r *ProfileRegistry) All() []domain.CalculationProfile {
	out := domain.StandardProfiles()
	custom := make([]domain.CalculationProfile, 0, len(r.custom))
	for _, p := range r.custom {
		custom = append(custom, p)
	}
	sort.Slice(custom, func(i, j int) bool { return custom[i].Method < custom[j].Method })
	return append(out, custom...)
}
