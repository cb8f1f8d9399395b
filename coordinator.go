package main

import (
	"log"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// CandidateLine is one ranked recommendation for the current position.
// Score fields are from the mover's perspective; WinPercent is a derived
// win-probability-like confidence for the mover.
type CandidateLine struct {
	Move       Move     `json:"move"`
	Rank       int      `json:"rank"`
	ScoreCP    int      `json:"score_cp"`
	Mate       int      `json:"mate,omitempty"`
	HasMate    bool     `json:"has_mate,omitempty"`
	WinPercent float64  `json:"win_percent"`
	Depth      int      `json:"depth"`
	PV         []string `json:"pv,omitempty"`

	nodes int64
}

// AnalysisResult is the coordinator's published snapshot: the position it
// was computed for and the best line per rank seen so far, rank-ascending.
// It is only meaningful while its Position is still authoritative.
type AnalysisResult struct {
	Position Position        `json:"position"`
	Lines    []CandidateLine `json:"lines"`
	Depth    int             `json:"depth"`
	Nodes    int64           `json:"nodes"`
}

func (r AnalysisResult) BestLine() (CandidateLine, bool) {
	if len(r.Lines) == 0 || r.Lines[0].Rank != 0 {
		return CandidateLine{}, false
	}
	return r.Lines[0], true
}

// AnalysisCoordinator owns the single outstanding search request and the
// current AnalysisResult. Every request gets a fresh token; a streamed line
// is accepted only when its token matches the outstanding one, so results
// for superseded positions are dropped no matter when they arrive.
type AnalysisCoordinator struct {
	mu        sync.Mutex
	engine    SearchEngine
	publish   func(AnalysisResult)
	current   Position
	token     string
	started   bool
	analyzing bool
	byRank    map[int]CandidateLine
	result    AnalysisResult
	dropped   uint64
}

func NewAnalysisCoordinator(engine SearchEngine, publish func(AnalysisResult)) *AnalysisCoordinator {
	return &AnalysisCoordinator{
		engine:  engine,
		publish: publish,
		byRank:  make(map[int]CandidateLine),
	}
}

// Analyze makes pos the coordinator's current position and requests a search
// for it. A repeated request for an unchanged placement is a no-op; any
// in-flight search for a different position is explicitly cancelled first
// (StartSearch does that itself). The engine call happens outside the mutex:
// stopping waits for the engine's acknowledgement, and the read loop must
// stay free to deliver it through HandleLine while we wait. An engine start
// failure leaves the coordinator waiting until the next position change
// supersedes it; there is no retry.
func (c *AnalysisCoordinator) Analyze(pos Position) {
	c.mu.Lock()
	if c.started && c.current.SamePlacement(pos) {
		c.mu.Unlock()
		return
	}
	c.adoptLocked(pos)
	c.analyzing = true
	engine := c.engine
	if engine == nil {
		c.mu.Unlock()
		return
	}
	config := GetConfig()
	req := SearchRequest{
		Token:   c.token,
		FEN:     pos.FEN(),
		Depth:   config.EngineDepth,
		MultiPV: config.EngineMultiPV,
	}
	c.mu.Unlock()
	if err := engine.StartSearch(req); err != nil {
		log.Printf("[engine] start search: %v", err)
	}
}

// Suspend makes pos current without searching it. Used when the turn policy
// gates analysis off: the position change still cancels stale work and still
// invalidates any previous result.
func (c *AnalysisCoordinator) Suspend(pos Position) {
	c.mu.Lock()
	if c.started && c.current.SamePlacement(pos) {
		c.mu.Unlock()
		return
	}
	wasSearching := c.analyzing
	c.adoptLocked(pos)
	c.analyzing = false
	engine := c.engine
	result := c.result
	publish := c.publish
	c.mu.Unlock()
	if wasSearching && engine != nil {
		if err := engine.StopSearch(); err != nil {
			log.Printf("[engine] stop search: %v", err)
		}
	}
	if publish != nil {
		publish(result)
	}
}

// adoptLocked retags and clears the rank map for a new current position.
// The retag comes first, so lines from the superseded request are stale
// before any engine command goes out; cancelling the engine itself is the
// caller's job, outside the mutex.
func (c *AnalysisCoordinator) adoptLocked(pos Position) {
	c.current = pos
	c.token = uuid.NewString()
	c.started = true
	c.byRank = make(map[int]CandidateLine)
	c.result = AnalysisResult{Position: pos, Lines: []CandidateLine{}}
}

// HandleLine ingests one streamed partial result. A stale token is a silent
// no-op; an accepted line replaces the stored line for its rank unless the
// stored one is deeper, then the full rank-ordered snapshot is republished.
func (c *AnalysisCoordinator) HandleLine(token string, line EngineLine) {
	c.mu.Lock()
	if token != c.token {
		c.dropped++
		c.mu.Unlock()
		if GetConfig().LogStaleDrops {
			log.Printf("[backend] dropped stale line (token %s, depth %d)", token, line.Depth)
		}
		return
	}
	candidate, ok := candidateFromLine(line)
	if !ok {
		c.mu.Unlock()
		return
	}
	if prev, seen := c.byRank[candidate.Rank]; seen && prev.Depth > candidate.Depth {
		c.mu.Unlock()
		return
	}
	c.byRank[candidate.Rank] = candidate
	c.result = c.snapshotLocked()
	result := c.result
	publish := c.publish
	c.mu.Unlock()
	if publish != nil {
		publish(result)
	}
}

func (c *AnalysisCoordinator) snapshotLocked() AnalysisResult {
	lines := make([]CandidateLine, 0, len(c.byRank))
	for _, line := range c.byRank {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Rank < lines[j].Rank })
	result := AnalysisResult{Position: c.current, Lines: lines}
	for _, line := range lines {
		if line.Rank == 0 {
			result.Depth = line.Depth
		}
		if line.nodes > result.Nodes {
			result.Nodes = line.nodes
		}
	}
	return result
}

// Result returns the latest published snapshot.
func (c *AnalysisCoordinator) Result() AnalysisResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// PredictionFor returns the engine's top move iff the stored result was
// computed for the given position. Used as the pre-move prediction when an
// opponent move is inferred.
func (c *AnalysisCoordinator) PredictionFor(pos Position) (Move, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.result.Position.SamePlacement(pos) {
		return Move{}, false
	}
	best, ok := c.result.BestLine()
	if !ok {
		return Move{}, false
	}
	return best.Move, true
}

func (c *AnalysisCoordinator) Analyzing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analyzing
}

// DroppedStale reports how many stale lines were discarded. Staleness is
// steady-state behavior, not a fault, but it should stay observable.
func (c *AnalysisCoordinator) DroppedStale() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Reset cancels any outstanding request and clears the result. The next
// Analyze call always issues a fresh search, even for the same placement.
func (c *AnalysisCoordinator) Reset() {
	c.mu.Lock()
	wasSearching := c.analyzing
	engine := c.engine
	c.current = Position{}
	c.token = ""
	c.started = false
	c.analyzing = false
	c.byRank = make(map[int]CandidateLine)
	c.result = AnalysisResult{}
	c.dropped = 0
	c.mu.Unlock()
	if wasSearching && engine != nil {
		if err := engine.StopSearch(); err != nil {
			log.Printf("[engine] stop search: %v", err)
		}
	}
}

func candidateFromLine(line EngineLine) (CandidateLine, bool) {
	if len(line.PV) == 0 {
		return CandidateLine{}, false
	}
	move, ok := MoveFromUCI(line.PV[0])
	if !ok {
		return CandidateLine{}, false
	}
	candidate := CandidateLine{
		Move:    move,
		Rank:    line.Rank,
		ScoreCP: line.ScoreCP,
		Mate:    line.Mate,
		HasMate: line.HasMate,
		Depth:   line.Depth,
		PV:      line.PV,
		nodes:   line.Nodes,
	}
	candidate.WinPercent = winPercent(line)
	return candidate, true
}

// winPercent maps a score to a mover win probability percentage using the
// usual centipawn logistic; a forced mate is 100 or 0 by its sign.
func winPercent(line EngineLine) float64 {
	if line.HasMate {
		if line.Mate > 0 {
			return 100
		}
		return 0
	}
	return 50 + 50*(2/(1+math.Exp(-0.00368208*float64(line.ScoreCP)))-1)
}
