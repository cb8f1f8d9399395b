package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrMissingCredential marks recognizer failures the user has to fix
// themselves (absent or rejected API key). The controller surfaces these
// verbatim instead of retrying.
var ErrMissingCredential = errors.New("recognizer credential missing or rejected")

// BoundingBox is the optional board location inside the captured frame.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BoardSnapshot is one raw recognizer guess. RawFEN may be partial or
// garbled; Position Repair deals with that.
type BoardSnapshot struct {
	RawFEN      string       `json:"fen"`
	BottomColor string       `json:"bottom"`
	Box         *BoundingBox `json:"box,omitempty"`
}

type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (BoardSnapshot, error)
}

const recognizerPrompt = `You are a chessboard reader. The image contains a chess board. ` +
	`Reply with a single JSON object: {"fen": "<FEN placement plus side to move if visible>", ` +
	`"bottom": "<w or b, the color playing up the board from the bottom edge>", ` +
	`"box": {"x": <int>, "y": <int>, "width": <int>, "height": <int>}}. ` +
	`"box" is the board's pixel bounding box inside the image; omit it if unsure. ` +
	`No commentary.`

// VisionRecognizer asks an OpenAI-compatible vision model for a board-state
// guess. The model name comes from config so it can be switched at runtime.
type VisionRecognizer struct {
	client *openai.Client
}

func NewVisionRecognizer() (*VisionRecognizer, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrMissingCredential)
	}
	return &VisionRecognizer{client: openai.NewClient(apiKey)}, nil
}

func (r *VisionRecognizer) Recognize(ctx context.Context, image []byte) (BoardSnapshot, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
	req := openai.ChatCompletionRequest{
		Model: GetConfig().RecognizerModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: recognizerPrompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
				},
			},
		},
	}
	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403) {
			return BoardSnapshot{}, fmt.Errorf("%w: %v", ErrMissingCredential, err)
		}
		return BoardSnapshot{}, fmt.Errorf("recognizer call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return BoardSnapshot{}, errors.New("recognizer returned no choices")
	}
	return parseSnapshotReply(resp.Choices[0].Message.Content)
}

// parseSnapshotReply tolerates code fences and stray prose around the JSON
// object; vision models are not reliable about either.
func parseSnapshotReply(content string) (BoardSnapshot, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return BoardSnapshot{}, fmt.Errorf("recognizer reply has no JSON object: %q", content)
	}
	var snap BoardSnapshot
	if err := json.Unmarshal([]byte(content[start:end+1]), &snap); err != nil {
		return BoardSnapshot{}, fmt.Errorf("recognizer reply not parseable: %w", err)
	}
	if strings.TrimSpace(snap.RawFEN) == "" {
		return BoardSnapshot{}, errors.New("recognizer reply has no fen")
	}
	if snap.BottomColor != "w" && snap.BottomColor != "b" {
		snap.BottomColor = ""
	}
	return snap, nil
}
