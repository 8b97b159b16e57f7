// Package aisvc generates study roadmaps with the Anthropic Messages API.
package aisvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/roadmap"
)

const (
	defaultHost = "https://api.anthropic.com"
	endpoint    = "/v1/messages"
	apiVersion  = "2023-06-01"

	temperature = 0.7
)

// GenerationError wraps any API or parse failure so callers can fall back.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "roadmap generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

type (
	anthropicRequest struct {
		Model       string             `json:"model"`
		MaxTokens   int                `json:"max_tokens"`
		Temperature float64            `json:"temperature"`
		Messages    []anthropicMessage `json:"messages"`
	}

	anthropicMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	anthropicResponse struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
)

type Service struct {
	conf   *core.Config
	host   string
	client *http.Client
}

var _ roadmap.Generator = (*Service)(nil)

func NewService(conf *core.Config) *Service {
	return &Service{
		conf:   conf,
		host:   defaultHost,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

// GenerateRoadmap asks the model for a roadmap payload and decodes its JSON
// reply. Failures come back as *GenerationError.
func (svc *Service) GenerateRoadmap(ctx context.Context, req roadmap.GenerationRequest) (*roadmap.GeneratedRoadmap, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       svc.conf.Anthropic.Model,
		MaxTokens:   svc.conf.Anthropic.MaxTokens,
		Temperature: temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: BuildPrompt(req)}},
	})
	if err != nil {
		return nil, &GenerationError{errors.Wrap(err, "encoding request")}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.host+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &GenerationError{errors.Wrap(err, "building request")}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", svc.conf.Anthropic.ApiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	res, err := svc.client.Do(httpReq)
	if err != nil {
		return nil, &GenerationError{errors.Wrap(err, "calling API")}
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &GenerationError{errors.Wrap(err, "reading response")}
	}

	var apiRes anthropicResponse
	if err = json.Unmarshal(resBody, &apiRes); err != nil {
		return nil, &GenerationError{errors.Wrap(err, "decoding response")}
	}
	if res.StatusCode >= http.StatusBadRequest {
		if apiRes.Error != nil {
			return nil, &GenerationError{errors.Errorf("API error %d (%s): %s", res.StatusCode, apiRes.Error.Type, apiRes.Error.Message)}
		}
		return nil, &GenerationError{errors.Errorf("API error %d", res.StatusCode)}
	}
	if len(apiRes.Content) == 0 {
		return nil, &GenerationError{errors.New("empty response content")}
	}

	payload := new(roadmap.GeneratedRoadmap)
	if err = json.Unmarshal([]byte(stripFences(apiRes.Content[0].Text)), payload); err != nil {
		return nil, &GenerationError{errors.Wrap(err, "decoding roadmap payload")}
	}
	return payload, nil
}

// stripFences removes a surrounding markdown code fence the model sometimes
// wraps its JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
