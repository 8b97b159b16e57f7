package aisvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
)

const payloadJSON = `{
	"title": "Mathematics: from 5 to 7",
	"overview": "A focused plan.",
	"steps": [{
		"order": 1,
		"title": "Fill the gaps",
		"description": "Revise the weak topics first.",
		"category": "weakness",
		"difficulty": "medium",
		"estimated_hours": 6,
		"checklist": ["task one", "task two", "task three"],
		"resources": [{"type": "video", "title": "Intro", "description": "", "url": "https://example.com"}]
	}]
}`

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	conf := &core.Config{TestMode: true}
	conf.Anthropic.ApiKey = "sk-test"
	conf.Anthropic.Model = "claude-sonnet-4-20250514"
	conf.Anthropic.MaxTokens = 4096

	svc := NewService(conf)
	svc.host = ts.URL
	return svc
}

func testRequest() roadmap.GenerationRequest {
	return roadmap.GenerationRequest{
		SubjectName:  "Mathematics",
		CurrentLevel: "5",
		TargetLevel:  "7",
		Deadline:     study.Today().AddDays(60),
		Weaknesses:   []string{"algebraic fractions"},
		HoursLogged:  12.5,
	}
}

func textResponse(text string) string {
	data, _ := json.Marshal(map[string]interface{}{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return string(data)
}

func TestGenerateRoadmap(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes a plain JSON reply", func(t *testing.T) {
		var gotReq anthropicRequest
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, endpoint, r.URL.Path)
			assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
			assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			fmt.Fprint(w, textResponse(payloadJSON))
		})

		payload, err := svc.GenerateRoadmap(ctx, testRequest())
		require.NoError(t, err)
		assert.Equal(t, "Mathematics: from 5 to 7", payload.Title)
		require.Len(t, payload.Steps, 1)
		assert.Equal(t, roadmap.CategoryWeakness, payload.Steps[0].Category)
		assert.Len(t, payload.Steps[0].Checklist, 3)

		require.Len(t, gotReq.Messages, 1)
		assert.Contains(t, gotReq.Messages[0].Content, "GCSE Mathematics")
		assert.Contains(t, gotReq.Messages[0].Content, "algebraic fractions")
		assert.Equal(t, 4096, gotReq.MaxTokens)
	})

	t.Run("strips markdown fences", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, textResponse("```json\n"+payloadJSON+"\n```"))
		})

		payload, err := svc.GenerateRoadmap(ctx, testRequest())
		require.NoError(t, err)
		assert.Equal(t, "Mathematics: from 5 to 7", payload.Title)
	})

	t.Run("API error", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(529) // anthropic overloaded
			fmt.Fprint(w, `{"error": {"type": "overloaded_error", "message": "Overloaded"}}`)
		})

		_, err := svc.GenerateRoadmap(ctx, testRequest())
		var genErr *GenerationError
		require.ErrorAs(t, err, &genErr)
		assert.Contains(t, err.Error(), "overloaded_error")
	})

	t.Run("empty content", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"content": []}`)
		})

		_, err := svc.GenerateRoadmap(ctx, testRequest())
		var genErr *GenerationError
		require.ErrorAs(t, err, &genErr)
	})

	t.Run("prose instead of JSON", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, textResponse("Here is your roadmap! ..."))
		})

		_, err := svc.GenerateRoadmap(ctx, testRequest())
		var genErr *GenerationError
		require.ErrorAs(t, err, &genErr)
	})

	t.Run("unreachable host", func(t *testing.T) {
		conf := &core.Config{TestMode: true}
		svc := NewService(conf)
		svc.host = "http://127.0.0.1:1"

		_, err := svc.GenerateRoadmap(ctx, testRequest())
		var genErr *GenerationError
		require.ErrorAs(t, err, &genErr)
	})
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFences(tt.in))
	}
}

func TestBuildPrompt(t *testing.T) {
	req := testRequest()
	req.Strengths = []string{"geometry"}
	req.AreasToImprove = []string{"exam timing"}

	prompt := BuildPrompt(req)
	assert.Contains(t, prompt, "GCSE Mathematics")
	assert.Contains(t, prompt, "Current level: 5")
	assert.Contains(t, prompt, "Target level: 7")
	assert.Contains(t, prompt, "- geometry")
	assert.Contains(t, prompt, "- algebraic fractions")
	assert.Contains(t, prompt, "- exam timing")
	assert.Contains(t, prompt, "ONLY a JSON object")
}
