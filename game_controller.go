package main

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// FrameOutcome says what SubmitFrame did with a snapshot. Drops and
// suppressions are expected steady-state behavior, never errors.
type FrameOutcome string

const (
	FrameApplied         FrameOutcome = "applied"
	FrameAppliedNoInfer  FrameOutcome = "applied_no_inference"
	FrameNoChange        FrameOutcome = "no_change"
	FrameDroppedBusy     FrameOutcome = "dropped_busy"
	FrameDroppedCooldown FrameOutcome = "dropped_cooldown"
	FrameSuppressed      FrameOutcome = "suppressed_override"
	FrameError           FrameOutcome = "error"
)

// GameController is the single writer of the authoritative Position. The
// recognizer and the engine stream never touch state directly; everything
// funnels through the documented entry points here.
type GameController struct {
	mu          sync.Mutex
	position    Position
	bottomColor string // side at the bottom of the board, the local participant

	recognizer  Recognizer
	coordinator *AnalysisCoordinator
	estimator   *SkillEstimator
	history     MoveHistory

	reconciling   bool      // in-flight guard: one snapshot at a time
	lastCaptureAt time.Time // cooldown anchor
	overrideUntil time.Time // local-override window deadline, zero when idle

	lastInferred *Move        // pending opponent-move highlight
	lastBox      *BoundingBox // board location in the latest frame, when reported
	lastMessage  string       // user-visible status, e.g. credential errors

	statusChanged func()
}

func NewGameController(recognizer Recognizer, coordinator *AnalysisCoordinator, estimator *SkillEstimator) *GameController {
	gc := &GameController{
		position:    StartingPosition(),
		bottomColor: "w",
		recognizer:  recognizer,
		coordinator: coordinator,
		estimator:   estimator,
	}
	return gc
}

// SetStatusObserver registers a callback fired after every accepted state
// change, outside the controller lock.
func (gc *GameController) SetStatusObserver(fn func()) {
	gc.mu.Lock()
	gc.statusChanged = fn
	gc.mu.Unlock()
}

// SubmitFrame runs one reconciliation attempt. Concurrent attempts are
// dropped rather than queued: only the most recent board state matters.
func (gc *GameController) SubmitFrame(ctx context.Context, image []byte) (FrameOutcome, string) {
	config := GetConfig()
	now := time.Now()

	gc.mu.Lock()
	if gc.reconciling {
		gc.mu.Unlock()
		return FrameDroppedBusy, "a previous snapshot is still being reconciled"
	}
	if !gc.lastCaptureAt.IsZero() && now.Sub(gc.lastCaptureAt) < time.Duration(config.CaptureCooldownMs)*time.Millisecond {
		gc.mu.Unlock()
		return FrameDroppedCooldown, "capture cooldown active"
	}
	if now.Before(gc.overrideUntil) {
		gc.mu.Unlock()
		return FrameSuppressed, "local-override window active"
	}
	if gc.recognizer == nil {
		gc.lastMessage = "recognizer unavailable: set OPENAI_API_KEY and restart"
		message := gc.lastMessage
		gc.mu.Unlock()
		return FrameError, message
	}
	gc.reconciling = true
	gc.lastCaptureAt = now
	gc.mu.Unlock()

	snap, err := gc.recognizer.Recognize(ctx, image)

	gc.mu.Lock()
	gc.reconciling = false
	if err != nil {
		if errors.Is(err, ErrMissingCredential) {
			gc.lastMessage = "recognizer credential rejected: check OPENAI_API_KEY"
		} else {
			gc.lastMessage = "recognition failed: " + err.Error()
		}
		message := gc.lastMessage
		gc.mu.Unlock()
		return FrameError, message
	}
	// The window may have opened while the recognizer was running.
	if time.Now().Before(gc.overrideUntil) {
		gc.mu.Unlock()
		return FrameSuppressed, "local-override window active"
	}
	outcome := gc.reconcileLocked(snap)
	notify := gc.statusChanged
	gc.mu.Unlock()
	if notify != nil && (outcome == FrameApplied || outcome == FrameAppliedNoInfer) {
		notify()
	}
	return outcome, ""
}

// reconcileLocked folds one repaired snapshot into the authoritative state.
func (gc *GameController) reconcileLocked(snap BoardSnapshot) FrameOutcome {
	if snap.BottomColor != "" {
		gc.bottomColor = snap.BottomColor
	}
	if snap.Box != nil {
		box := *snap.Box
		gc.lastBox = &box
	}
	repaired := RepairPosition(snap.RawFEN)
	previous := gc.position
	if previous.SamePlacement(repaired) {
		return FrameNoChange
	}
	gc.lastMessage = ""

	move, inferred := InferMove(previous, repaired)
	if !inferred {
		// Inconsistent snapshot (e.g. two half-moves between frames).
		// Adopt the board wholesale; never guess a move to highlight.
		gc.lastInferred = nil
		gc.position = repaired
		gc.requestAnalysisLocked(repaired)
		log.Printf("[backend] snapshot adopted without inference (placement %s)", repaired.Placement)
		return FrameAppliedNoInfer
	}

	next, ok := applyMoveTo(previous, move)
	if !ok {
		// Inference produced the move from this exact position, so replay
		// cannot normally fail; treat as an inconsistent snapshot if it does.
		gc.lastInferred = nil
		gc.position = repaired
		gc.requestAnalysisLocked(repaired)
		return FrameAppliedNoInfer
	}

	mover := previous.ActiveColor
	entry := HistoryEntry{Move: move, Color: mover, Source: SourceVision, At: time.Now()}
	if mover != gc.bottomColor {
		// Opponent moved: score it against the pre-move prediction before
		// the coordinator switches to the new position.
		if prediction, has := gc.coordinator.PredictionFor(previous); has {
			p := prediction
			gc.estimator.Observe(&p, move)
			entry.HadPrediction = true
			entry.MatchedBest = prediction.Equals(move)
		}
		gc.lastInferred = &move
	} else {
		gc.lastInferred = nil
	}
	gc.history.Push(entry)
	gc.position = next
	gc.requestAnalysisLocked(next)
	log.Printf("[backend] inferred move %s for %s", move.UCI(), mover)
	return FrameApplied
}

// ApplyLocalMove applies an interactive move. It always takes precedence
// over vision: the pending opponent highlight is cleared and the override
// window restarts, suspending automatic reconciliation. The estimator is
// never fed local moves.
func (gc *GameController) ApplyLocalMove(from, to, promotion string) bool {
	move := Move{From: from, To: to, Promotion: promotion}
	if !move.IsValid() {
		return false
	}
	config := GetConfig()

	gc.mu.Lock()
	next, ok := applyMoveTo(gc.position, move)
	if !ok {
		gc.mu.Unlock()
		return false
	}
	mover := gc.position.ActiveColor
	gc.position = next
	gc.lastInferred = nil
	gc.lastMessage = ""
	gc.overrideUntil = time.Now().Add(time.Duration(config.LocalOverrideWindowMs) * time.Millisecond)
	gc.history.Push(HistoryEntry{Move: move, Color: mover, Source: SourceLocal, At: time.Now()})
	gc.requestAnalysisLocked(next)
	notify := gc.statusChanged
	gc.mu.Unlock()
	if notify != nil {
		notify()
	}
	return true
}

// requestAnalysisLocked routes a position change to the coordinator. The
// change always cancels stale work; the turn policy only decides whether a
// new search is issued for it.
func (gc *GameController) requestAnalysisLocked(pos Position) {
	policy := GetConfig().AnalyzeTurnPolicy
	localToMove := pos.ActiveColor == gc.bottomColor
	analyze := policy == TurnPolicyBoth ||
		(policy == TurnPolicyLocal && localToMove) ||
		(policy == TurnPolicyOpponent && !localToMove)
	if analyze {
		gc.coordinator.Analyze(pos)
		return
	}
	gc.coordinator.Suspend(pos)
}

// Reset restores the starting position and clears analysis, skill estimate
// and suspicion in one step.
func (gc *GameController) Reset() {
	gc.mu.Lock()
	gc.position = StartingPosition()
	gc.lastInferred = nil
	gc.lastBox = nil
	gc.lastMessage = ""
	gc.overrideUntil = time.Time{}
	gc.lastCaptureAt = time.Time{}
	gc.history.Clear()
	gc.coordinator.Reset()
	gc.estimator.Reset()
	gc.requestAnalysisLocked(gc.position)
	notify := gc.statusChanged
	gc.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (gc *GameController) Position() Position {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.position
}

func (gc *GameController) BottomColor() string {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.bottomColor
}

func (gc *GameController) LastInferred() (Move, bool) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.lastInferred == nil {
		return Move{}, false
	}
	return *gc.lastInferred, true
}

func (gc *GameController) BoardBox() (BoundingBox, bool) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.lastBox == nil {
		return BoundingBox{}, false
	}
	return *gc.lastBox, true
}

func (gc *GameController) LastMessage() string {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.lastMessage
}

func (gc *GameController) OverrideActive() bool {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return time.Now().Before(gc.overrideUntil)
}

func (gc *GameController) History() MoveHistory {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.history
}
