package prefs

import (
	"context"
	"log"
)

type Color struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CardCustomization is the emoji and colour palette a user picked for one card.
type CardCustomization struct {
	CardID string   `json:"cardId"`
	Emojis []string `json:"emojis"`
	Colors []Color  `json:"colors"`
}

var defaultEmojis = []string{"💳", "🔥", "💸", "🛒", "🍔", "✈️", "🎮", "🎵", "☕", "🎁", "⭐"}

var defaultColors = []Color{
	{Name: "default", Value: ""},
	{Name: "red", Value: "#d6515b"},
	{Name: "orange", Value: "#e8875b"},
	{Name: "yellow", Value: "#f2c94c"},
	{Name: "green", Value: "#4caf7d"},
	{Name: "teal", Value: "#3bb0a8"},
	{Name: "blue", Value: "#4a8fe7"},
	{Name: "indigo", Value: "#5b5fc7"},
	{Name: "purple", Value: "#9b5de5"},
	{Name: "pink", Value: "#e26ca5"},
	{Name: "brown", Value: "#9c6b4e"},
	{Name: "gray", Value: "#8e8e93"},
}

// DefaultCustomization returns a fresh copy of the system palette for cardID.
func DefaultCustomization(cardID string) CardCustomization {
	return CardCustomization{
		CardID: cardID,
		Emojis: append([]string(nil), defaultEmojis...),
		Colors: append([]Color(nil), defaultColors...),
	}
}

// Clone returns a deep copy; slices are never shared with the receiver.
func (c CardCustomization) Clone() CardCustomization {
	return CardCustomization{
		CardID: c.CardID,
		Emojis: append([]string(nil), c.Emojis...),
		Colors: append([]Color(nil), c.Colors...),
	}
}

type customizationMap map[string]CardCustomization

func (s *Store) loadCustomizations(ctx context.Context) customizationMap {
	stored := customizationMap{}
	if !s.Load(ctx, KeyCardCustomizations, &stored) || stored == nil {
		return customizationMap{}
	}
	return stored
}

// GetCustomization returns the saved palette for cardID, or the defaults. Callers own the
// returned slices.
func (s *Store) GetCustomization(ctx context.Context, cardID string) CardCustomization {
	stored := s.loadCustomizations(ctx)
	if _, ok := stored[cardID]; !ok {
		return DefaultCustomization(cardID)
	}
	return customizationFrom(stored, cardID)
}

// AllCustomizations returns a copy of every saved palette keyed by card id.
func (s *Store) AllCustomizations(ctx context.Context) map[string]CardCustomization {
	stored := s.loadCustomizations(ctx)
	out := make(map[string]CardCustomization, len(stored))
	for cardID := range stored {
		out[cardID] = customizationFrom(stored, cardID)
	}
	return out
}

// customizationFrom fills any empty slice of a stored entry with the defaults.
func customizationFrom(stored customizationMap, cardID string) CardCustomization {
	entry := stored[cardID]
	entry.CardID = cardID
	if len(entry.Emojis) == 0 || len(entry.Colors) == 0 {
		def := DefaultCustomization(cardID)
		if len(entry.Emojis) == 0 {
			entry.Emojis = def.Emojis
		}
		if len(entry.Colors) == 0 {
			entry.Colors = def.Colors
		}
	}
	return entry.Clone()
}

// SaveCustomization merges the palette for cardID into the stored mapping and persists the
// whole mapping. Empty inputs fall back to the defaults.
func (s *Store) SaveCustomization(ctx context.Context, cardID string, emojis []string, colors []Color) bool {
	if len(emojis) == 0 {
		log.Printf("prefs: customization for card %s has no emojis, using defaults", cardID)
		emojis = defaultEmojis
	}
	if len(colors) == 0 {
		log.Printf("prefs: customization for card %s has no colors, using defaults", cardID)
		colors = defaultColors
	}

	unlock := s.lock(KeyCardCustomizations)
	defer unlock()

	stored := s.loadCustomizations(ctx)
	stored[cardID] = CardCustomization{
		CardID: cardID,
		Emojis: append([]string(nil), emojis...),
		Colors: append([]Color(nil), colors...),
	}
	return s.setLocked(ctx, KeyCardCustomizations, stored)
}

// ResetCardCustomization drops the saved palette for cardID so reads return the defaults.
func (s *Store) ResetCardCustomization(ctx context.Context, cardID string) bool {
	unlock := s.lock(KeyCardCustomizations)
	defer unlock()

	stored := s.loadCustomizations(ctx)
	if _, ok := stored[cardID]; !ok {
		return true
	}
	delete(stored, cardID)
	return s.setLocked(ctx, KeyCardCustomizations, stored)
}
