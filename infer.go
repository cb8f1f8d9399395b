package main

// InferMove reconstructs the single move explaining the placement difference
// between two positions. Enumeration follows the rules library's move
// generation order, so repeated calls with the same inputs always resolve to
// the same move. Returns false when the placements are identical, the
// previous position is not decodable, or no legal move reproduces the new
// placement (an inconsistent snapshot that must not be guessed).
func InferMove(previous, next Position) (Move, bool) {
	if previous.SamePlacement(next) {
		return Move{}, false
	}
	game, ok := gameFromPosition(previous)
	if !ok {
		return Move{}, false
	}
	base := game.Position()
	for _, candidate := range base.ValidMoves() {
		after := base.Update(candidate)
		if placementOf(after.String()) == next.Placement {
			return moveFromEngine(candidate), true
		}
	}
	return Move{}, false
}

// applyMoveTo replays a move on a position and returns the resulting
// authoritative position. Returns false when the move is not legal there.
func applyMoveTo(p Position, move Move) (Position, bool) {
	game, ok := gameFromPosition(p)
	if !ok {
		return Position{}, false
	}
	base := game.Position()
	var fallback Position
	found := false
	for _, candidate := range base.ValidMoves() {
		got := moveFromEngine(candidate)
		if !got.Equals(move) {
			continue
		}
		after := positionFromFullFEN(base.Update(candidate).String())
		if got.Promotion == move.Promotion {
			return after, true
		}
		// Promotion omitted by the caller: queen by convention.
		if move.Promotion == "" && (!found || got.Promotion == "q") {
			fallback = after
			found = true
		}
	}
	return fallback, found
}

func placementOf(fen string) string {
	for i := 0; i < len(fen); i++ {
		if fen[i] == ' ' {
			return fen[:i]
		}
	}
	return fen
}
