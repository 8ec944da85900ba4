package prefs

import (
	"context"
	"reflect"
	"testing"
)

func TestGetCustomizationReturnsIndependentCopies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, saved := range []bool{false, true} {
		if saved {
			s.SaveCustomization(ctx, "7", []string{"🔥", "💸"}, []Color{{Name: "red", Value: "#d6515b"}})
		}

		first := s.GetCustomization(ctx, "7")
		second := s.GetCustomization(ctx, "7")

		first.Emojis[0] = "🐛"
		first.Colors[0].Name = "mutated"
		first.Emojis = append(first.Emojis, "➕")

		if second.Emojis[0] == "🐛" || second.Colors[0].Name == "mutated" {
			t.Fatalf("saved=%v: mutating one copy changed another", saved)
		}
		third := s.GetCustomization(ctx, "7")
		if third.Emojis[0] == "🐛" {
			t.Fatalf("saved=%v: mutating a copy changed the store", saved)
		}
	}
}

func TestDefaultsAreNotShared(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := s.GetCustomization(ctx, "1")
	a.Emojis[0] = "🐛"

	b := s.GetCustomization(ctx, "2")
	if b.Emojis[0] == "🐛" {
		t.Fatal("default palette leaked a mutation across cards")
	}
	if DefaultCustomization("3").Emojis[0] == "🐛" {
		t.Fatal("package defaults were mutated")
	}
}

func TestCustomizationScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	emojis := []string{"🔥", "💸"}
	colors := []Color{{Name: "red", Value: "#d6515b"}}
	if !s.SaveCustomization(ctx, "10", emojis, colors) {
		t.Fatal("SaveCustomization() reported failure")
	}

	got := s.GetCustomization(ctx, "10")
	if !reflect.DeepEqual(got.Emojis, emojis) || !reflect.DeepEqual(got.Colors, colors) {
		t.Fatalf("GetCustomization() = %+v, want emojis=%v colors=%v", got, emojis, colors)
	}
	if got.CardID != "10" {
		t.Fatalf("CardID = %q, want 10", got.CardID)
	}

	if !s.ResetCardCustomization(ctx, "10") {
		t.Fatal("ResetCardCustomization() reported failure")
	}
	reset := s.GetCustomization(ctx, "10")
	if len(reset.Emojis) != 11 || len(reset.Colors) != 12 {
		t.Fatalf("expected 11 emojis and 12 colors after reset, got %d and %d", len(reset.Emojis), len(reset.Colors))
	}
	if !reflect.DeepEqual(reset, DefaultCustomization("10")) {
		t.Fatalf("reset did not return defaults: %+v", reset)
	}
}

func TestSaveCustomizationFallsBackToDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveCustomization(ctx, "4", nil, []Color{{Name: "blue", Value: "#4a8fe7"}})
	got := s.GetCustomization(ctx, "4")
	if !reflect.DeepEqual(got.Emojis, defaultEmojis) {
		t.Fatalf("expected default emojis, got %v", got.Emojis)
	}
	if len(got.Colors) != 1 || got.Colors[0].Name != "blue" {
		t.Fatalf("expected saved colors, got %v", got.Colors)
	}
}

func TestSaveCustomizationMergesIntoMapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveCustomization(ctx, "1", []string{"☕"}, []Color{{Name: "brown", Value: "#9c6b4e"}})
	s.SaveCustomization(ctx, "2", []string{"✈️"}, []Color{{Name: "blue", Value: "#4a8fe7"}})
	s.SaveCustomization(ctx, "1", []string{"🍔"}, []Color{{Name: "red", Value: "#d6515b"}})

	all := s.AllCustomizations(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(all))
	}
	if all["1"].Emojis[0] != "🍔" || all["2"].Emojis[0] != "✈️" {
		t.Fatalf("unexpected mapping: %+v", all)
	}
}

func TestStoredEntryWithEmptySlicesReadsDefaults(t *testing.T) {
	backend := newMemoryBackend()
	backend.values[KeyCardCustomizations] = []byte(`{"5":{"cardId":"5","emojis":[],"colors":[{"name":"red","value":"#d6515b"}]}}`)
	s := New(backend)

	got := s.GetCustomization(context.Background(), "5")
	if len(got.Emojis) != len(defaultEmojis) {
		t.Fatalf("expected default emojis, got %v", got.Emojis)
	}
	if len(got.Colors) != 1 {
		t.Fatalf("expected stored colors, got %v", got.Colors)
	}
}

func TestResetMissingCardIsNoop(t *testing.T) {
	s := newTestStore(t)
	if !s.ResetCardCustomization(context.Background(), "unknown") {
		t.Fatal("resetting an unsaved card should succeed")
	}
}
