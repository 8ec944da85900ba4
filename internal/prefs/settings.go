package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type AppearanceMode string

const (
	AppearanceSystem AppearanceMode = "system"
	AppearanceLight  AppearanceMode = "light"
	AppearanceDark   AppearanceMode = "dark"
)

var ErrInvalidAppearance = errors.New("invalid appearance mode")

func ParseAppearanceMode(value string) (AppearanceMode, error) {
	switch mode := AppearanceMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case AppearanceSystem, AppearanceLight, AppearanceDark:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAppearance, value)
	}
}

// AppearanceMode returns the saved theme mode, defaulting to system.
func (s *Store) AppearanceMode(ctx context.Context) AppearanceMode {
	mode, err := ParseAppearanceMode(Get(ctx, s, KeyAppearanceMode, string(AppearanceSystem)))
	if err != nil {
		return AppearanceSystem
	}
	return mode
}

func (s *Store) SetAppearanceMode(ctx context.Context, mode AppearanceMode) error {
	if _, err := ParseAppearanceMode(string(mode)); err != nil {
		return err
	}
	s.Set(ctx, KeyAppearanceMode, mode)
	return nil
}

// HidePauseWarning reports whether the user dismissed the pause-card warning for good.
// The flag is stored as the text "true" or "false"; a JSON string form is also accepted.
func (s *Store) HidePauseWarning(ctx context.Context) bool {
	raw, ok := s.getRaw(ctx, KeyHidePauseWarning)
	if !ok {
		return false
	}
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	return value == "true"
}

func (s *Store) SetHidePauseWarning(ctx context.Context, hide bool) bool {
	unlock := s.lock(KeyHidePauseWarning)
	defer unlock()

	value := "false"
	if hide {
		value = "true"
	}
	return s.setRawLocked(ctx, KeyHidePauseWarning, []byte(value))
}

type Section string

const (
	SectionMerchant Section = "merchant"
	SectionCategory Section = "category"
	SectionLocation Section = "location"
	SectionBurner   Section = "burner"
)

// DefaultSectionOrder is the card-list order before the user rearranges anything.
var DefaultSectionOrder = []Section{SectionMerchant, SectionCategory, SectionLocation, SectionBurner}

var ErrInvalidSectionOrder = errors.New("invalid section order")

func knownSection(section Section) bool {
	for _, known := range DefaultSectionOrder {
		if section == known {
			return true
		}
	}
	return false
}

// ValidateSectionOrder requires exactly one occurrence of every known section.
func ValidateSectionOrder(order []Section) error {
	if len(order) != len(DefaultSectionOrder) {
		return fmt.Errorf("%w: expected %d sections, got %d", ErrInvalidSectionOrder, len(DefaultSectionOrder), len(order))
	}
	seen := make(map[Section]bool, len(order))
	for _, section := range order {
		if !knownSection(section) {
			return fmt.Errorf("%w: unknown section %q", ErrInvalidSectionOrder, section)
		}
		if seen[section] {
			return fmt.Errorf("%w: duplicate section %q", ErrInvalidSectionOrder, section)
		}
		seen[section] = true
	}
	return nil
}

// NormalizeSectionOrder repairs a stored order: unknown and repeated ids are dropped and
// missing ids are appended in default order.
func NormalizeSectionOrder(order []Section) []Section {
	out := make([]Section, 0, len(DefaultSectionOrder))
	seen := make(map[Section]bool, len(DefaultSectionOrder))
	for _, section := range order {
		if !knownSection(section) || seen[section] {
			continue
		}
		seen[section] = true
		out = append(out, section)
	}
	for _, section := range DefaultSectionOrder {
		if !seen[section] {
			out = append(out, section)
		}
	}
	return out
}

func (s *Store) SectionOrder(ctx context.Context) []Section {
	var order []Section
	if !s.Load(ctx, KeySectionOrder, &order) {
		return append([]Section(nil), DefaultSectionOrder...)
	}
	return NormalizeSectionOrder(order)
}

func (s *Store) SetSectionOrder(ctx context.Context, order []Section) error {
	if err := ValidateSectionOrder(order); err != nil {
		return err
	}
	s.Set(ctx, KeySectionOrder, order)
	return nil
}

func (s *Store) ResetSectionOrder(ctx context.Context) bool {
	return s.Remove(ctx, KeySectionOrder)
}
