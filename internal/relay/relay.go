// Package relay talks to OpenAI-compatible chat completion backends.
//
// The desktop frontend never calls the model provider directly: it asks the
// backend to stream a completion, and the backend forwards delta chunks back
// through an Emitter (in practice the events bridge). One conversation has at
// most one in-flight stream; the Registry cancels a running stream when a new
// one starts for the same conversation.
package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds non-streaming requests. Streams have no
// timeout; they end with [DONE], an error, or cancellation.
const DefaultRequestTimeout = 60 * time.Second

// ChatMessage is one entry of the conversation context sent to the model.
// Content is forwarded verbatim: a JSON string for plain text, an array for
// multimodal parts.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Chunk is one streamed piece of a completion, addressed to a conversation.
type Chunk struct {
	AssistantID string `json:"assistant_id"`
	TopicID     string `json:"topic_id"`
	Content     string `json:"content"`
	Done        bool   `json:"done"`
}

// Emitter receives chunks as they arrive. Implementations must not block for
// long; a slow emitter stalls the stream.
type Emitter interface {
	Emit(chunk Chunk)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(chunk Chunk)

func (f EmitterFunc) Emit(chunk Chunk) { f(chunk) }

// Client issues completion requests. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a relay client. If logger is nil, a default logger
// writing to stderr is used.
func NewClient(logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[relay] ", log.LstdFlags)
	}
	return &Client{
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// completionsURL normalizes a configured API URL into the chat completions
// endpoint. Users paste base URLs with and without trailing slashes, and some
// paste the full completions URL.
func completionsURL(apiURL string) string {
	apiURL = strings.TrimRight(apiURL, "/")
	if strings.HasSuffix(apiURL, "/chat/completions") {
		return apiURL
	}
	return apiURL + "/chat/completions"
}

// baseURL strips a pasted completions path back down to the API base.
func baseURL(apiURL string) string {
	return strings.TrimSuffix(strings.TrimRight(apiURL, "/"), "/chat/completions")
}

// streamRequest is the completion request body.
type streamRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// deltaChunk is the part of an SSE data line the stream cares about.
type deltaChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream requests a streamed completion and forwards each content delta to
// emit, addressed with assistantID and topicID.
//
// The stream ends when the server sends "data: [DONE]" (a final done-chunk is
// emitted), when the response body ends, or when ctx is cancelled. On failure
// an error chunk is emitted with done set, so the frontend always gets a
// terminal event, and the error is returned.
func (c *Client) Stream(ctx context.Context, apiURL, apiKey, model, assistantID, topicID string,
	messages []ChatMessage, emit Emitter) error {

	err := c.stream(ctx, apiURL, apiKey, model, assistantID, topicID, messages, emit)
	if err != nil && ctx.Err() == nil {
		c.logger.Printf("Stream error for %s-%s: %v", assistantID, topicID, err)
		emit.Emit(Chunk{
			AssistantID: assistantID,
			TopicID:     topicID,
			Content:     fmt.Sprintf("\n[Error: %v]", err),
			Done:        true,
		})
	}
	return err
}

func (c *Client) stream(ctx context.Context, apiURL, apiKey, model, assistantID, topicID string,
	messages []ChatMessage, emit Emitter) error {

	payload, err := json.Marshal(streamRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsURL(apiURL), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "data: [DONE]" {
			emit.Emit(Chunk{AssistantID: assistantID, TopicID: topicID, Done: true})
			return nil
		}

		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		// Unparseable data lines are skipped, not fatal: providers interleave
		// keep-alives and vendor extensions.
		var chunk deltaChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		emit.Emit(Chunk{
			AssistantID: assistantID,
			TopicID:     topicID,
			Content:     chunk.Choices[0].Delta.Content,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}
