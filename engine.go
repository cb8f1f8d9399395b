package main

import (
	"bufio"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SearchRequest asks the engine for analysis of one position. Token is the
// coordinator's freshness tag; every line produced for this request carries
// it back.
type SearchRequest struct {
	Token   string
	FEN     string
	Depth   int
	MultiPV int
}

// EngineLine is one streamed partial result. Rank is zero-based (0 is the
// principal line). Exactly one of ScoreCP / Mate is meaningful; HasMate
// tells which. Scores are from the mover's perspective, as UCI reports them.
type EngineLine struct {
	Depth   int
	Nodes   int64
	Rank    int
	ScoreCP int
	Mate    int
	HasMate bool
	PV      []string
}

// SearchEngine is the coordinator's view of the external search resource.
type SearchEngine interface {
	StartSearch(req SearchRequest) error
	StopSearch() error
	Close() error
}

// UCIEngine drives a UCI subprocess over stdin/stdout pipes. A single reader
// goroutine parses the stream; each "go" bumps pending and each bestmove
// settles the oldest outstanding one, so a late bestmove from a superseded
// search can never make a still-running search look finished. Info lines are
// delivered only while exactly one request is outstanding and a token is
// set; lines read in the stop/retag gap or while a superseded search is
// still winding down are discarded, which is what makes retagging safe.
type UCIEngine struct {
	cmd   *exec.Cmd
	stdin *bufio.Writer

	writeMu sync.Mutex

	tokenMu sync.Mutex
	token   string
	pending int // "go" commands not yet answered by a bestmove

	bestmove    chan struct{}
	stopTimeout time.Duration
	sink        func(token string, line EngineLine)
}

func NewUCIEngine(path string, multiPVMax int, sink func(string, EngineLine)) (*UCIEngine, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	engine := &UCIEngine{
		cmd:         cmd,
		stdin:       bufio.NewWriter(stdin),
		bestmove:    make(chan struct{}, 4),
		stopTimeout: time.Second,
		sink:        sink,
	}
	scanner := bufio.NewScanner(stdout)
	engine.send("uci")
	if !engine.waitFor(scanner, "uciok") {
		engine.Close()
		return nil, fmt.Errorf("engine %s: no uciok", path)
	}
	if multiPVMax > 1 {
		engine.send(fmt.Sprintf("setoption name MultiPV value %d", multiPVMax))
	}
	engine.send("isready")
	if !engine.waitFor(scanner, "readyok") {
		engine.Close()
		return nil, fmt.Errorf("engine %s: no readyok", path)
	}
	go engine.readLoop(scanner)
	return engine, nil
}

func (e *UCIEngine) send(cmd string) {
	e.stdin.WriteString(cmd + "\n")
	e.stdin.Flush()
}

func (e *UCIEngine) waitFor(scanner *bufio.Scanner, expected string) bool {
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), expected) {
			return true
		}
	}
	return false
}

func (e *UCIEngine) readLoop(scanner *bufio.Scanner) {
	for scanner.Scan() {
		text := scanner.Text()
		if strings.HasPrefix(text, "bestmove") {
			e.tokenMu.Lock()
			if e.pending > 0 {
				e.pending--
			}
			e.tokenMu.Unlock()
			select {
			case e.bestmove <- struct{}{}:
			default:
			}
			continue
		}
		line, ok := parseInfoLine(text)
		if !ok {
			continue
		}
		e.tokenMu.Lock()
		token := e.token
		if e.pending > 1 {
			// More than one "go" outstanding: the engine is still winding
			// down a superseded search, so this line is not the current
			// request's.
			token = ""
		}
		e.tokenMu.Unlock()
		if token == "" || e.sink == nil {
			continue
		}
		e.sink(token, line)
	}
}

// StartSearch abandons any running search, waits briefly for the engine to
// acknowledge the stop, then issues the new request under its token. The
// token is cleared before "stop" goes out so late lines from the old search
// can never be attributed to the new one.
func (e *UCIEngine) StartSearch(req SearchRequest) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.stopLocked()
	e.tokenMu.Lock()
	e.token = req.Token
	e.tokenMu.Unlock()
	multiPV := req.MultiPV
	if multiPV < 1 {
		multiPV = 1
	}
	e.send(fmt.Sprintf("setoption name MultiPV value %d", multiPV))
	e.send("position fen " + req.FEN)
	e.tokenMu.Lock()
	e.pending++
	e.tokenMu.Unlock()
	if req.Depth > 0 {
		e.send(fmt.Sprintf("go depth %d", req.Depth))
	} else {
		e.send("go infinite")
	}
	return nil
}

func (e *UCIEngine) StopSearch() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.stopLocked()
	return nil
}

// stopLocked cancels whatever the engine is working on. The token is cleared
// first so no further line can be attributed anywhere, then a stop goes out
// whenever any "go" is still unanswered. A search that already settled
// naturally leaves pending at zero and needs nothing.
func (e *UCIEngine) stopLocked() {
	e.tokenMu.Lock()
	e.token = ""
	outstanding := e.pending
	e.tokenMu.Unlock()
	if outstanding == 0 {
		return
	}
	for {
		select {
		case <-e.bestmove:
			continue
		default:
		}
		break
	}
	e.send("stop")
	select {
	case <-e.bestmove:
	case <-time.After(e.stopTimeout):
		log.Printf("[engine] stop not acknowledged within %v", e.stopTimeout)
	}
}

func (e *UCIEngine) Close() error {
	e.writeMu.Lock()
	e.send("quit")
	e.writeMu.Unlock()
	return e.cmd.Wait()
}

// parseInfoLine extracts one ranked partial result from a UCI "info" line.
// Lines without a pv (currmove chatter) and bound lines from aspiration
// re-searches are rejected.
func parseInfoLine(text string) (EngineLine, bool) {
	if !strings.HasPrefix(text, "info") {
		return EngineLine{}, false
	}
	fields := strings.Fields(text)
	line := EngineLine{Rank: 0}
	hasPV := false
	hasScore := false
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				line.Depth, _ = strconv.Atoi(fields[i+1])
			}
		case "nodes":
			if i+1 < len(fields) {
				line.Nodes, _ = strconv.ParseInt(fields[i+1], 10, 64)
			}
		case "multipv":
			if i+1 < len(fields) {
				rank, _ := strconv.Atoi(fields[i+1])
				if rank > 0 {
					line.Rank = rank - 1
				}
			}
		case "score":
			if i+2 < len(fields) {
				value, err := strconv.Atoi(fields[i+2])
				if err != nil {
					continue
				}
				switch fields[i+1] {
				case "cp":
					line.ScoreCP = value
					hasScore = true
				case "mate":
					line.Mate = value
					line.HasMate = true
					hasScore = true
				}
			}
		case "lowerbound", "upperbound":
			return EngineLine{}, false
		case "pv":
			if i+1 < len(fields) {
				line.PV = fields[i+1:]
				hasPV = true
			}
			i = len(fields)
		}
	}
	if !hasPV || !hasScore || line.Depth <= 0 {
		return EngineLine{}, false
	}
	return line, true
}
