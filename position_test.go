package main

import "testing"

func TestRepairFillsAllDefaultsForPlacementOnlyInput(t *testing.T) {
	got := RepairPosition("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR")
	if got.Placement != "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR" {
		t.Fatalf("placement not preserved: %q", got.Placement)
	}
	if got.ActiveColor != "w" || got.Castling != "KQkq" || got.EnPassant != "-" {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.HalfMove != 0 || got.FullMove != 1 {
		t.Fatalf("unexpected counters: %+v", got)
	}
}

func TestRepairKeepsPresentFieldsAndDefaultsTheRest(t *testing.T) {
	got := RepairPosition("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b Kq")
	if got.ActiveColor != "b" {
		t.Fatalf("active color not preserved: %q", got.ActiveColor)
	}
	if got.Castling != "Kq" {
		t.Fatalf("castling not preserved: %q", got.Castling)
	}
	if got.EnPassant != "-" || got.HalfMove != 0 || got.FullMove != 1 {
		t.Fatalf("missing suffix fields not defaulted: %+v", got)
	}
}

func TestRepairParsesCompleteInputUnchanged(t *testing.T) {
	got := RepairPosition("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	if got.FEN() != "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1" {
		t.Fatalf("complete FEN altered: %q", got.FEN())
	}
}

func TestRepairRejectsMissingKing(t *testing.T) {
	got := RepairPosition("rnbq1bnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	if got.FEN() != startingFEN {
		t.Fatalf("placement without black king should fall back to start, got %q", got.FEN())
	}
}

func TestRepairRejectsDuplicateKing(t *testing.T) {
	got := RepairPosition("rnbqkbnr/pppppppp/8/8/8/8/PPPPKPPP/RNBQKBNR w KQkq - 0 1")
	if got.FEN() != startingFEN {
		t.Fatalf("placement with two white kings should fall back to start, got %q", got.FEN())
	}
}

func TestRepairRejectsEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n"} {
		if got := RepairPosition(raw); got.FEN() != startingFEN {
			t.Fatalf("empty input %q should yield the starting position, got %q", raw, got.FEN())
		}
	}
}

func TestRepairRejectsUndecodablePlacement(t *testing.T) {
	got := RepairPosition("Kk/8/8")
	if got.FEN() != startingFEN {
		t.Fatalf("garbled placement should fall back to start, got %q", got.FEN())
	}
}

func TestRepairDefaultsGarbledCounters(t *testing.T) {
	got := RepairPosition("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - x y")
	if got.HalfMove != 0 || got.FullMove != 1 {
		t.Fatalf("garbled counters should default individually, got %+v", got)
	}
}

func TestSamePlacementIgnoresMetadataFields(t *testing.T) {
	a := RepairPosition("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	b := RepairPosition("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b - - 33 40")
	if !a.SamePlacement(b) {
		t.Fatalf("positions differing only in metadata should compare equal")
	}
}

func TestRepairNeverReturnsPartialPosition(t *testing.T) {
	inputs := []string{
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b Kq",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b Kq e3",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b Kq e3 4",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b Kq e3 4 12",
	}
	for _, raw := range inputs {
		got := RepairPosition(raw)
		if _, ok := gameFromPosition(got); !ok {
			t.Fatalf("repaired position not decodable for input %q: %q", raw, got.FEN())
		}
	}
}
