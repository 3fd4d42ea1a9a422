package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
	"github.com/sells-group/lead-enrichment-worker/pkg/anthropic"
)

// fakeAI returns a canned response or error for every CreateMessage call.
type fakeAI struct {
	text string
	err  error

	lastReq anthropic.MessageRequest
	calls   int
}

func (f *fakeAI) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func siteContent(text string) *model.SiteContent {
	return &model.SiteContent{
		SiteKey:   "acme.example",
		Main:      model.Page{URL: "https://acme.example", Text: text},
		FetchedAt: time.Now(),
	}
}

func TestExtract_ParsesCandidate(t *testing.T) {
	ai := &fakeAI{text: `{
		"first_name": "Jane",
		"last_name": "Doe",
		"street": "123 Main St",
		"city": "Springfield",
		"state": null,
		"postal_code": null,
		"country": null,
		"confidence": 0.85,
		"reasoning": "Owner named on contact page"
	}`}

	e := NewExtractor(ai, "claude-haiku-4-5-20251001", 1024, time.Minute)
	cand, err := e.Extract(context.Background(), model.Lead{Company: "Acme"}, siteContent("Jane Doe, owner. 123 Main St, Springfield."))
	require.NoError(t, err)

	assert.Equal(t, "Jane", cand.FirstName)
	assert.Equal(t, "Doe", cand.LastName)
	assert.Equal(t, "123 Main St", cand.Address.Street)
	assert.Equal(t, "Springfield", cand.Address.City)
	assert.Empty(t, cand.Address.State)
	assert.InDelta(t, 0.85, cand.Confidence, 0.001)
	assert.Equal(t, 1, ai.calls, "one model call per item")
}

func TestExtract_CodeFencedResponse(t *testing.T) {
	ai := &fakeAI{text: "```json\n{\"first_name\": \"Jane\", \"confidence\": 0.5}\n```"}

	e := NewExtractor(ai, "claude-haiku-4-5-20251001", 0, 0)
	cand, err := e.Extract(context.Background(), model.Lead{Company: "Acme"}, siteContent("text"))
	require.NoError(t, err)
	assert.Equal(t, "Jane", cand.FirstName)
}

func TestExtract_MalformedJSONIsNoData(t *testing.T) {
	ai := &fakeAI{text: "I could not find any owner information on this page."}

	e := NewExtractor(ai, "claude-haiku-4-5-20251001", 1024, time.Minute)
	_, err := e.Extract(context.Background(), model.Lead{Company: "Acme"}, siteContent("text"))
	require.Error(t, err)

	var xe *ExtractError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, ExtractNoData, xe.Kind)
	assert.False(t, IsInfraError(err))
}

func TestExtract_APIFailureIsInfra(t *testing.T) {
	ai := &fakeAI{err: errors.New("anthropic: create message: 529 overloaded")}

	e := NewExtractor(ai, "claude-haiku-4-5-20251001", 1024, time.Minute)
	_, err := e.Extract(context.Background(), model.Lead{Company: "Acme"}, siteContent("text"))
	require.Error(t, err)
	assert.True(t, IsInfraError(err))
}

func TestExtract_TruncatesLongContent(t *testing.T) {
	ai := &fakeAI{text: `{"confidence": 0.1}`}

	long := make([]byte, maxContentChars*2)
	for i := range long {
		long[i] = 'a'
	}

	e := NewExtractor(ai, "claude-haiku-4-5-20251001", 1024, time.Minute)
	_, err := e.Extract(context.Background(), model.Lead{Company: "Acme"}, siteContent(string(long)))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(ai.lastReq.Messages[0].Content), maxContentChars+len(extractPrompt)+64)
}

func TestParseCandidate_ClampsConfidence(t *testing.T) {
	cand, err := parseCandidate(`{"first_name": "Jane", "confidence": 1.7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cand.Confidence)

	cand, err = parseCandidate(`{"first_name": "Jane", "confidence": -0.2}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cand.Confidence)
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		`{"a": 1}`:                               `{"a": 1}`,
		"```json\n{\"a\": 1}\n```":               `{"a": 1}`,
		"```\n{\"a\": 1}\n```":                   `{"a": 1}`,
		"Here is the result: {\"a\": 1} thanks.": `{"a": 1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanJSON(in))
	}
}
