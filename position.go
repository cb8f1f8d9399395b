package main

import (
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

const startingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is a fully specified board state. All six fields are always
// populated; RepairPosition fills whatever the recognizer left out.
type Position struct {
	Placement   string `json:"placement"`
	ActiveColor string `json:"active_color"`
	Castling    string `json:"castling"`
	EnPassant   string `json:"en_passant"`
	HalfMove    int    `json:"half_move"`
	FullMove    int    `json:"full_move"`
}

func StartingPosition() Position {
	return positionFromFullFEN(startingFEN)
}

func (p Position) FEN() string {
	return strings.Join([]string{
		p.Placement,
		p.ActiveColor,
		p.Castling,
		p.EnPassant,
		strconv.Itoa(p.HalfMove),
		strconv.Itoa(p.FullMove),
	}, " ")
}

// SamePlacement is the only comparison used for change detection. The
// remaining fields come from vision defaults and must not trigger
// reconciliation on their own.
func (p Position) SamePlacement(other Position) bool {
	return p.Placement == other.Placement
}

func (p Position) IsZero() bool {
	return p.Placement == ""
}

// RepairPosition turns a possibly truncated FEN-like string into a complete
// Position. Missing suffix fields get safe defaults; a placement without
// exactly one king per side, or one the rules library cannot decode, falls
// back to the starting position. It never fails.
func RepairPosition(raw string) Position {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return StartingPosition()
	}
	placement := fields[0]
	if strings.Count(placement, "K") != 1 || strings.Count(placement, "k") != 1 {
		return StartingPosition()
	}
	pos := Position{
		Placement:   placement,
		ActiveColor: "w",
		Castling:    "KQkq",
		EnPassant:   "-",
		HalfMove:    0,
		FullMove:    1,
	}
	if len(fields) > 1 && (fields[1] == "w" || fields[1] == "b") {
		pos.ActiveColor = fields[1]
	}
	if len(fields) > 2 {
		pos.Castling = fields[2]
	}
	if len(fields) > 3 {
		pos.EnPassant = fields[3]
	}
	if len(fields) > 4 {
		if n, err := strconv.Atoi(fields[4]); err == nil && n >= 0 {
			pos.HalfMove = n
		}
	}
	if len(fields) > 5 {
		if n, err := strconv.Atoi(fields[5]); err == nil && n >= 1 {
			pos.FullMove = n
		}
	}
	if _, err := chess.FEN(pos.FEN()); err != nil {
		return StartingPosition()
	}
	return pos
}

// positionFromFullFEN splits a FEN known to be complete, e.g. one produced
// by the rules library after applying a move.
func positionFromFullFEN(fen string) Position {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return RepairPosition(fen)
	}
	half, _ := strconv.Atoi(fields[4])
	full, _ := strconv.Atoi(fields[5])
	return Position{
		Placement:   fields[0],
		ActiveColor: fields[1],
		Castling:    fields[2],
		EnPassant:   fields[3],
		HalfMove:    half,
		FullMove:    full,
	}
}

// gameFromPosition decodes a Position into a playable game. Returns false
// when the encoding is not a legal board.
func gameFromPosition(p Position) (*chess.Game, bool) {
	opt, err := chess.FEN(p.FEN())
	if err != nil {
		return nil, false
	}
	return chess.NewGame(opt), true
}
