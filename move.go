package main

import "github.com/notnil/chess"

type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

func NewMove(from, to string) Move {
	return Move{From: from, To: to}
}

func (m Move) IsValid() bool {
	return validSquare(m.From) && validSquare(m.To)
}

// Equals compares origin and destination only. Promotion choice is not part
// of the match definition used by the estimator.
func (m Move) Equals(other Move) bool {
	return m.From == other.From && m.To == other.To
}

func (m Move) UCI() string {
	return m.From + m.To + m.Promotion
}

func MoveFromUCI(uci string) (Move, bool) {
	if len(uci) != 4 && len(uci) != 5 {
		return Move{}, false
	}
	move := Move{From: uci[:2], To: uci[2:4]}
	if len(uci) == 5 {
		move.Promotion = uci[4:]
	}
	if !move.IsValid() {
		return Move{}, false
	}
	return move, true
}

func moveFromEngine(m *chess.Move) Move {
	move := Move{From: m.S1().String(), To: m.S2().String()}
	if m.Promo() != chess.NoPieceType {
		move.Promotion = m.Promo().String()
	}
	return move
}

func validSquare(sq string) bool {
	if len(sq) != 2 {
		return false
	}
	return sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}
