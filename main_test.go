package main

import (
	"bytes"
	"encoding/base64"
	"net/http/httptest"
	"testing"
)

func TestReadFrameImageRawBody(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	req := httptest.NewRequest("POST", "/api/frame", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "image/png")
	image, err := readFrameImage(req)
	if err != nil {
		t.Fatalf("raw body: %v", err)
	}
	if !bytes.Equal(image, raw) {
		t.Fatalf("raw body must pass through unchanged")
	}
}

func TestReadFrameImageJSONDataURL(t *testing.T) {
	raw := []byte("fake-png-bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)
	body := `{"image":"data:image/png;base64,` + encoded + `"}`
	req := httptest.NewRequest("POST", "/api/frame", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	image, err := readFrameImage(req)
	if err != nil {
		t.Fatalf("json body: %v", err)
	}
	if !bytes.Equal(image, raw) {
		t.Fatalf("data-url prefix must be stripped before decoding")
	}
}

func TestReadFrameImageRejectsBadInput(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/frame", bytes.NewReader(nil))
	if _, err := readFrameImage(req); err == nil {
		t.Fatalf("empty body must be rejected")
	}
	req = httptest.NewRequest("POST", "/api/frame", bytes.NewBufferString(`{"image":"%%%"}`))
	req.Header.Set("Content-Type", "application/json")
	if _, err := readFrameImage(req); err == nil {
		t.Fatalf("invalid base64 must be rejected")
	}
}

func TestControllerStatusShape(t *testing.T) {
	testConfig(t, func(c *Config) { c.CaptureCooldownMs = 0 })
	gc, _, coord, estimator := newTestController(nil)
	coord.Analyze(gc.Position())
	coord.HandleLine(coord.currentToken(), rankLine(0, 14, 25, "e2e4"))

	status := controllerStatus(gc, coord, estimator)
	if status.FEN != startingFEN || status.ActiveColor != "w" || status.BottomColor != "w" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if !status.Analyzing {
		t.Fatalf("status must reflect the analyzing state")
	}
	if status.LastInferred != nil {
		t.Fatalf("no highlight expected on a fresh controller")
	}
	if status.History == nil || len(status.History) != 0 {
		t.Fatalf("history must serialize as an empty array, got %v", status.History)
	}
}

func TestHistoryToDTOSourceNames(t *testing.T) {
	var history MoveHistory
	history.Push(HistoryEntry{Move: NewMove("e2", "e4"), Color: "w", Source: SourceLocal})
	history.Push(HistoryEntry{Move: Move{From: "e7", To: "e8", Promotion: "q"}, Color: "b", Source: SourceVision, MatchedBest: true, HadPrediction: true})

	dto := historyToDTO(history)
	if len(dto) != 2 {
		t.Fatalf("expected two entries, got %d", len(dto))
	}
	if dto[0].Source != "local" || dto[1].Source != "vision" {
		t.Fatalf("source names wrong: %+v", dto)
	}
	if dto[1].Promotion != "q" || !dto[1].MatchedBest || !dto[1].HadPrediction {
		t.Fatalf("vision entry lost fields: %+v", dto[1])
	}
}

func TestAnalysisPayloadFromResult(t *testing.T) {
	estimator := NewSkillEstimator()
	payload := analysisPayloadFrom(AnalysisResult{}, estimator)
	if payload.FEN != "" || payload.Placement != "" || len(payload.Lines) != 0 {
		t.Fatalf("zero result must serialize empty: %+v", payload)
	}

	pos := StartingPosition()
	line, _ := candidateFromLine(EngineLine{Depth: 16, ScoreCP: 40, PV: []string{"e2e4", "e7e5"}, Nodes: 5000})
	payload = analysisPayloadFrom(AnalysisResult{Position: pos, Lines: []CandidateLine{line}, Depth: 16, Nodes: 5000}, estimator)
	if payload.FEN != startingFEN || payload.Depth != 16 || payload.Nodes != 5000 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if len(payload.Lines) != 1 || payload.Lines[0].Move.UCI() != "e2e4" {
		t.Fatalf("lines not carried through: %+v", payload.Lines)
	}
	if payload.Lines[0].WinPercent <= 50 {
		t.Fatalf("positive score must map above 50%%, got %f", payload.Lines[0].WinPercent)
	}
	if payload.Skill.Rating != 800 {
		t.Fatalf("fresh estimator must report the base rating: %+v", payload.Skill)
	}
}
