package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type StatusResponse struct {
	FEN            string            `json:"fen"`
	Placement      string            `json:"placement"`
	ActiveColor    string            `json:"active_color"`
	BottomColor    string            `json:"bottom_color"`
	LastInferred   *Move             `json:"last_inferred,omitempty"`
	BoardBox       *BoundingBox      `json:"board_box,omitempty"`
	OverrideActive bool              `json:"override_active"`
	Analyzing      bool              `json:"analyzing"`
	LastMessage    string            `json:"last_message,omitempty"`
	Skill          SkillEstimate     `json:"skill"`
	Suspicion      float64           `json:"suspicion"`
	History        []historyEntryDTO `json:"history"`
	Config         Config            `json:"config"`
	StaleDropped   uint64            `json:"stale_dropped"`
}

type historyEntryDTO struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Promotion     string `json:"promotion,omitempty"`
	Color         string `json:"color"`
	Source        string `json:"source"`
	MatchedBest   bool   `json:"matched_best"`
	HadPrediction bool   `json:"had_prediction"`
	AtMs          int64  `json:"at_ms"`
}

type apiMove struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion"`
}

type framePayload struct {
	Image string `json:"image"` // base64, optionally a data URL
}

type frameResponse struct {
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

func main() {
	var persistOnceGuard sync.Once
	estimator := NewSkillEstimator()
	persistOnShutdown := func(reason string) {
		persistOnceGuard.Do(func() {
			log.Printf("[backend] persisting session on %s", reason)
			persistSession(estimator)
		})
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("[backend] panic recovered in main: %v", recovered)
			persistOnShutdown("panic")
		}
	}()

	loadPersistedSession(estimator)
	defer persistOnShutdown("exit")

	hub := NewHub()
	analysisHub := NewAnalysisHub()

	var coordinator *AnalysisCoordinator
	publishAnalysis := func(result AnalysisResult) {
		analysisHub.Publish(analysisPayloadFrom(result, estimator))
	}

	engine, err := startEngine(func(token string, line EngineLine) {
		coordinator.HandleLine(token, line)
	})
	if err != nil {
		log.Printf("[engine] unavailable, analysis disabled: %v", err)
	}
	coordinator = NewAnalysisCoordinator(engine, publishAnalysis)

	recognizer, err := NewVisionRecognizer()
	if err != nil {
		log.Printf("[vision] recognizer unavailable: %v", err)
		recognizer = nil
	}

	var controller *GameController
	if recognizer != nil {
		controller = NewGameController(recognizer, coordinator, estimator)
	} else {
		controller = NewGameController(nil, coordinator, estimator)
	}
	controller.SetStatusObserver(func() {
		hub.PublishStatus(controllerStatus(controller, coordinator, estimator))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx.Done())
	go analysisHub.Run(ctx.Done())

	// Analysis starts immediately on the starting position.
	coordinator.Analyze(controller.Position())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, controllerStatus(controller, coordinator, estimator))
	})

	r.Post("/api/move", func(w http.ResponseWriter, r *http.Request) {
		var payload apiMove
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if !controller.ApplyLocalMove(payload.From, payload.To, payload.Promotion) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "illegal move"})
			return
		}
		writeJSON(w, http.StatusOK, controllerStatus(controller, coordinator, estimator))
	})

	r.Post("/api/reset", func(w http.ResponseWriter, r *http.Request) {
		controller.Reset()
		status := controllerStatus(controller, coordinator, estimator)
		hub.PublishReset(status)
		writeJSON(w, http.StatusOK, status)
	})

	r.Post("/api/frame", func(w http.ResponseWriter, r *http.Request) {
		image, err := readFrameImage(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		outcome, detail := controller.SubmitFrame(r.Context(), image)
		status := http.StatusOK
		if outcome == FrameError {
			status = http.StatusBadGateway
			if controller.LastMessage() != "" {
				detail = controller.LastMessage()
			}
		}
		writeJSON(w, status, frameResponse{Outcome: string(outcome), Detail: detail})
	})

	r.Get("/api/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, GetConfig())
	})

	r.Post("/api/config", func(w http.ResponseWriter, r *http.Request) {
		var payload Config
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		configStore.Update(payload)
		writeJSON(w, http.StatusOK, GetConfig())
	})

	r.Get("/ws/", func(w http.ResponseWriter, r *http.Request) {
		serveWS(hub, controller, coordinator, estimator, w, r)
	})
	r.Get("/ws/analysis", func(w http.ResponseWriter, r *http.Request) {
		serveAnalysisWS(analysisHub, coordinator, estimator, w, r)
	})

	server := &http.Server{
		Addr:    listenAddr(),
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	log.Printf("[backend] listening on %s", server.Addr)
	var runErr error
	select {
	case <-sigCtx.Done():
		log.Printf("[backend] shutdown signal received: %v", sigCtx.Err())
	case err, ok := <-serverErrCh:
		if ok {
			runErr = err
			log.Printf("[backend] server error: %v", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[backend] graceful shutdown failed: %v", err)
		if closeErr := server.Close(); closeErr != nil && !errors.Is(closeErr, http.ErrServerClosed) {
			log.Printf("[backend] forced close failed: %v", closeErr)
		}
	}

	cancel()
	if engine != nil {
		if err := engine.StopSearch(); err != nil {
			log.Printf("[engine] stop on shutdown: %v", err)
		}
		if err := engine.Close(); err != nil {
			log.Printf("[engine] close: %v", err)
		}
	}
	persistOnShutdown("shutdown")
	if runErr != nil {
		log.Printf("[backend] exiting after server error: %v", runErr)
	}
}

func startEngine(sink func(string, EngineLine)) (SearchEngine, error) {
	path := os.Getenv("CHESSVISION_ENGINE_PATH")
	if path == "" {
		path = "stockfish"
	}
	engine, err := NewUCIEngine(path, GetConfig().EngineMultiPV, sink)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func listenAddr() string {
	if addr := os.Getenv("CHESSVISION_LISTEN_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

// readFrameImage accepts either a JSON body with a base64 image field or a
// raw image body.
func readFrameImage(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		return nil, errors.New("frame body unreadable")
	}
	if len(body) == 0 {
		return nil, errors.New("empty frame")
	}
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return body, nil
	}
	var payload framePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.New("invalid frame payload")
	}
	encoded := payload.Image
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.Index(encoded, ","); idx >= 0 {
			encoded = encoded[idx+1:]
		}
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New("image field is not valid base64")
	}
	return image, nil
}

func controllerStatus(controller *GameController, coordinator *AnalysisCoordinator, estimator *SkillEstimator) StatusResponse {
	pos := controller.Position()
	status := StatusResponse{
		FEN:            pos.FEN(),
		Placement:      pos.Placement,
		ActiveColor:    pos.ActiveColor,
		BottomColor:    controller.BottomColor(),
		OverrideActive: controller.OverrideActive(),
		Analyzing:      coordinator.Analyzing(),
		LastMessage:    controller.LastMessage(),
		Skill:          estimator.Estimate(),
		Suspicion:      estimator.Suspicion(),
		History:        historyToDTO(controller.History()),
		Config:         GetConfig(),
		StaleDropped:   coordinator.DroppedStale(),
	}
	if move, ok := controller.LastInferred(); ok {
		status.LastInferred = &move
	}
	if box, ok := controller.BoardBox(); ok {
		status.BoardBox = &box
	}
	return status
}

func historyToDTO(history MoveHistory) []historyEntryDTO {
	entries := history.All()
	result := make([]historyEntryDTO, 0, len(entries))
	for _, entry := range entries {
		source := "vision"
		if entry.Source == SourceLocal {
			source = "local"
		}
		result = append(result, historyEntryDTO{
			From:          entry.Move.From,
			To:            entry.Move.To,
			Promotion:     entry.Move.Promotion,
			Color:         entry.Color,
			Source:        source,
			MatchedBest:   entry.MatchedBest,
			HadPrediction: entry.HadPrediction,
			AtMs:          entry.At.UnixMilli(),
		})
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
