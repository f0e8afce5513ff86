// Package annotate is the Annotator Client: a batched, OpenAI-compatible
// chat-completions client that fills in each code snippet's language,
// title, and description (spec.md §4.4).
package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codedox/internal/apperr"
)

// Request is one snippet awaiting annotation.
type Request struct {
	SnippetID   string
	Code        string
	Language    string // hint from the extractor; may be empty
	Title       string // hint from semantic context; may be empty
	Description string // hint from semantic context; may be empty
}

// Result is the annotator's verdict for one snippet.
type Result struct {
	SnippetID   string
	Language    string
	Title       string
	Description string
	Err         error
}

// Client calls an OpenAI-compatible chat endpoint to annotate a batch of
// snippets in a single request.
type Client interface {
	Annotate(ctx context.Context, batch []Request) ([]Result, error)
}

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint
// (self-hosted gateways, OpenRouter, Azure OpenAI, and OpenAI itself all
// implement this surface).
type OpenAIClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Model      string
}

// NewOpenAIClient constructs an OpenAIClient.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIKey:     apiKey,
		Model:      model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *responseFmt  `json:"response_format,omitempty"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// annotation is the JSON shape the model is asked to emit per snippet.
type annotation struct {
	ID          string `json:"id"`
	Language    string `json:"language"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (c *OpenAIClient) Annotate(ctx context.Context, batch []Request) ([]Result, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	reqBody := chatRequest{
		Model:          c.Model,
		Temperature:    0,
		ResponseFormat: &responseFmt{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(batch)},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperr.Annotator("marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Annotator("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Cancelled("annotate cancelled", ctx.Err())
		}
		return nil, apperr.Annotator("request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Annotator("read response", err)
	}

	if resp.StatusCode >= 400 {
		return nil, apperr.Annotator(fmt.Sprintf("annotator returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Annotator("unmarshal response", err)
	}
	if parsed.Error != nil {
		return nil, apperr.Annotator(parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return nil, apperr.Annotator("empty choices in annotator response", nil)
	}

	return parseAnnotations(batch, parsed.Choices[0].Message.Content), nil
}

func parseAnnotations(batch []Request, content string) []Result {
	var wrapper struct {
		Annotations []annotation `json:"annotations"`
	}
	byID := make(map[string]annotation)
	if err := json.Unmarshal([]byte(content), &wrapper); err == nil {
		for _, a := range wrapper.Annotations {
			byID[a.ID] = a
		}
	} else {
		// Some models emit a bare array instead of {"annotations": [...]}.
		var arr []annotation
		if err := json.Unmarshal([]byte(content), &arr); err == nil {
			for _, a := range arr {
				byID[a.ID] = a
			}
		}
	}

	results := make([]Result, 0, len(batch))
	for _, req := range batch {
		a, ok := byID[req.SnippetID]
		if !ok {
			results = append(results, Result{
				SnippetID: req.SnippetID,
				Err:       apperr.Annotator("no annotation returned for snippet "+req.SnippetID, nil),
			})
			continue
		}
		results = append(results, Result{
			SnippetID:   req.SnippetID,
			Language:    a.Language,
			Title:       a.Title,
			Description: a.Description,
		})
	}
	return results
}

const systemPrompt = `You label source code snippets pulled out of documentation pages. ` +
	`For each snippet, determine its programming language, a short descriptive title, ` +
	`and a one-sentence description of what the code does. Respond with JSON of the shape ` +
	`{"annotations": [{"id": "...", "language": "...", "title": "...", "description": "..."}]}, ` +
	`one entry per snippet, preserving the given id.`

func userPrompt(batch []Request) string {
	var b strings.Builder
	b.WriteString("Annotate these snippets:\n\n")
	for _, r := range batch {
		fmt.Fprintf(&b, "id: %s\n", r.SnippetID)
		if r.Title != "" {
			fmt.Fprintf(&b, "context title: %s\n", r.Title)
		}
		if r.Description != "" {
			fmt.Fprintf(&b, "context description: %s\n", r.Description)
		}
		if r.Language != "" {
			fmt.Fprintf(&b, "hinted language: %s\n", r.Language)
		}
		b.WriteString("code:\n```\n")
		b.WriteString(r.Code)
		b.WriteString("\n```\n\n")
	}
	return b.String()
}
