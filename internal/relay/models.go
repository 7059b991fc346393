package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ModelInfo is one entry of the provider's model catalog.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// modelsResponse is the OpenAI-style catalog envelope.
type modelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// FetchModels lists the models the provider offers (GET {base}/models).
func (c *Client) FetchModels(ctx context.Context, apiURL, apiKey string) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	url := baseURL(apiURL) + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var catalog modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}
	return catalog.Data, nil
}

// summarizeInstruction asks the model to compress the conversation into
// long-term memory for the topic.
const summarizeInstruction = "Briefly summarize the core content of the conversation above and " +
	"what the user wants, to serve as long-term memory for future exchanges (under 500 words)."

// completionResponse is the non-streaming completion envelope, including the
// inline error some providers return with a 200 status.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize runs a non-streaming completion over the conversation with a
// summarization instruction appended, returning the model's summary text.
func (c *Client) Summarize(ctx context.Context, apiURL, apiKey, model string, messages []ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	instruction, err := json.Marshal(summarizeInstruction)
	if err != nil {
		return "", fmt.Errorf("failed to encode instruction: %w", err)
	}
	withInstruction := append(append([]ChatMessage{}, messages...), ChatMessage{
		Role:    "system",
		Content: instruction,
	})

	payload, err := json.Marshal(streamRequest{Model: model, Messages: withInstruction, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsURL(apiURL), strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode completion: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("completion failed: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
