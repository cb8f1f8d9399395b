package main

import "time"

type MoveSource int

const (
	SourceLocal MoveSource = iota
	SourceVision
)

type HistoryEntry struct {
	Move          Move
	Color         string // side that moved, "w" or "b"
	Source        MoveSource
	MatchedBest   bool // observed move equalled the engine top move
	HadPrediction bool
	At            time.Time
}

type MoveHistory struct {
	entries []HistoryEntry
}

func (h *MoveHistory) Clear() {
	h.entries = nil
}

func (h *MoveHistory) Push(entry HistoryEntry) {
	h.entries = append(h.entries, entry)
}

func (h MoveHistory) Size() int {
	return len(h.entries)
}

func (h MoveHistory) All() []HistoryEntry {
	return append([]HistoryEntry(nil), h.entries...)
}
