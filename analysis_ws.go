package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type candidateLineDTO struct {
	Move       Move     `json:"move"`
	Rank       int      `json:"rank"`
	ScoreCP    int      `json:"score_cp"`
	Mate       int      `json:"mate,omitempty"`
	WinPercent float64  `json:"win_percent"`
	Depth      int      `json:"depth"`
	PV         []string `json:"pv,omitempty"`
}

type analysisPayload struct {
	FEN       string             `json:"fen"`
	Placement string             `json:"placement"`
	Lines     []candidateLineDTO `json:"lines"`
	Depth     int                `json:"depth"`
	Nodes     int64              `json:"nodes"`
	Skill     SkillEstimate      `json:"skill"`
	Suspicion float64            `json:"suspicion"`
	UpdatedAt int64              `json:"updated_at_ms"`
}

type AnalysisClient struct {
	hub  *AnalysisHub
	conn *websocket.Conn
	send chan []byte
}

type AnalysisHub struct {
	mu        sync.Mutex
	clients   map[*AnalysisClient]struct{}
	broadcast chan analysisPayload
}

func NewAnalysisHub() *AnalysisHub {
	return &AnalysisHub{
		clients:   make(map[*AnalysisClient]struct{}),
		broadcast: make(chan analysisPayload, 64),
	}
}

func (h *AnalysisHub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case payload := <-h.broadcast:
			h.mu.Lock()
			if len(h.clients) == 0 {
				h.mu.Unlock()
				continue
			}
			for client := range h.clients {
				client.sendJSON(wsMessage{Type: "analysis", Payload: mustMarshal(payload)})
			}
			h.mu.Unlock()
		}
	}
}

func (h *AnalysisHub) Publish(payload analysisPayload) {
	select {
	case h.broadcast <- payload:
	default:
	}
}

func (h *AnalysisHub) Register(c *AnalysisClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *AnalysisHub) Unregister(c *AnalysisClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (c *AnalysisClient) sendJSON(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func serveAnalysisWS(hub *AnalysisHub, coordinator *AnalysisCoordinator, estimator *SkillEstimator, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &AnalysisClient{hub: hub, conn: conn, send: make(chan []byte, 16)}
	hub.Register(client)

	initial := analysisPayloadFrom(coordinator.Result(), estimator)
	client.sendJSON(wsMessage{Type: "analysis", Payload: mustMarshal(initial)})

	go func() {
		defer conn.Close()
		if err := writeWSWithHeartbeat(conn, client.send); err != nil {
			return
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			hub.Unregister(client)
			return
		}
	}
}

func analysisPayloadFrom(result AnalysisResult, estimator *SkillEstimator) analysisPayload {
	lines := make([]candidateLineDTO, 0, len(result.Lines))
	for _, line := range result.Lines {
		lines = append(lines, candidateLineDTO{
			Move:       line.Move,
			Rank:       line.Rank,
			ScoreCP:    line.ScoreCP,
			Mate:       line.Mate,
			WinPercent: line.WinPercent,
			Depth:      line.Depth,
			PV:         line.PV,
		})
	}
	payload := analysisPayload{
		FEN:       result.Position.FEN(),
		Placement: result.Position.Placement,
		Lines:     lines,
		Depth:     result.Depth,
		Nodes:     result.Nodes,
		UpdatedAt: time.Now().UnixMilli(),
	}
	if estimator != nil {
		payload.Skill = estimator.Estimate()
		payload.Suspicion = estimator.Suspicion()
	}
	if result.Position.IsZero() {
		payload.FEN = ""
		payload.Placement = ""
	}
	return payload
}
