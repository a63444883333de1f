package main

import (
	"testing"

	"file-nft-market/internal/domain"
)

func TestParseKinds(t *testing.T) {
	got, err := parseKinds("ItemListed, ItemBought")
	if err != nil {
		t.Fatalf("parseKinds: %v", err)
	}
	if len(got) != 2 || got[0] != domain.EventItemListed || got[1] != domain.EventItemBought {
		t.Errorf("unexpected kinds %v", got)
	}

	if got, err := parseKinds(""); err != nil || got != nil {
		t.Errorf("empty: got %v, %v", got, err)
	}
	if _, err := parseKinds("ItemStolen"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestWanted(t *testing.T) {
	if !wanted(nil, domain.EventItemSoldOut) {
		t.Error("empty filter passes everything")
	}
	filter := []domain.EventKind{domain.EventItemListed}
	if wanted(filter, domain.EventItemSoldOut) {
		t.Error("filtered kind passed")
	}
}

func TestSequencer_DropsReplayOverlap(t *testing.T) {
	s := sequencer{replayed: 5}
	for _, seq := range []uint64{4, 5} {
		if s.admit(seq) {
			t.Errorf("seq %d was replayed and should be dropped", seq)
		}
	}
	for _, seq := range []uint64{6, 8} {
		if !s.admit(seq) {
			t.Errorf("seq %d should pass", seq)
		}
	}
}

func TestSequencer_ServerRestart(t *testing.T) {
	s := sequencer{replayed: 3}
	for _, seq := range []uint64{3, 4, 9} {
		s.admit(seq)
	}
	// numbering starts over after a restart
	for _, seq := range []uint64{1, 2, 3} {
		if !s.admit(seq) {
			t.Errorf("seq %d after restart should pass", seq)
		}
	}
}

func TestSequencer_NoReplay(t *testing.T) {
	var s sequencer
	for _, seq := range []uint64{1, 2, 1, 1} {
		if !s.admit(seq) {
			t.Errorf("seq %d should pass without replay", seq)
		}
	}
}
