// Package enrich holds the enrichment pipeline: Claude extraction of owner
// name and address from site content, validation of candidate values,
// reconciliation against the existing CRM record, and the worker loop that
// drives it all from the queue.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
	"github.com/sells-group/lead-enrichment-worker/pkg/anthropic"
)

// maxContentChars caps the page text included in the extraction prompt.
const maxContentChars = 12000

// ExtractErrorKind splits extraction failures into the two outcomes the
// worker cares about: the model produced nothing usable (the item is done)
// versus the call itself failed (the item should be redelivered).
type ExtractErrorKind int

const (
	ExtractNoData ExtractErrorKind = iota
	ExtractInfra
)

// ExtractError is an extraction failure tagged with its kind.
type ExtractError struct {
	Kind ExtractErrorKind
	Err  error
}

func (e *ExtractError) Error() string {
	return e.Err.Error()
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// IsInfraError reports whether err is an infrastructure-kind extraction
// failure, the kind that must not acknowledge the work item.
func IsInfraError(err error) bool {
	var xe *ExtractError
	return errors.As(err, &xe) && xe.Kind == ExtractInfra
}

const extractSystemText = `You are a data extraction analyst. You extract the business owner's name and the business mailing address from website text. Return only a valid JSON object. Use null for any field the text does not support — never guess, never use placeholder text like "not found" or "unknown".`

const extractPrompt = `Company: %s

Website text:
%s

Identify the business owner (or principal/founder) and the business mailing address from the text above. Return a valid JSON object:
{
  "first_name": <owner first name or null>,
  "last_name": <owner last name or null>,
  "street": <street address or null>,
  "city": <city or null>,
  "state": <state or region or null>,
  "postal_code": <postal code or null>,
  "country": <country or null>,
  "confidence": <0.0-1.0>,
  "reasoning": "<brief explanation of what the text supports>"
}`

// Extractor runs one Claude extraction call per work item.
type Extractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewExtractor creates an Extractor. Zero maxTokens and timeout fall back to
// 1024 tokens and 60s.
func NewExtractor(client anthropic.Client, modelID string, maxTokens int64, timeout time.Duration) *Extractor {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Extractor{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// Extract asks the model for an owner-name/address candidate from the site
// content. A failed API call returns an ExtractError of kind ExtractInfra;
// an unparseable response returns kind ExtractNoData.
func (e *Extractor) Extract(ctx context.Context, lead model.Lead, content *model.SiteContent) (*model.Candidate, error) {
	text := content.CombinedText()
	if len(text) > maxContentChars {
		text = text[:maxContentChars]
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	temp := 0.0
	resp, err := e.client.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      extractSystemText,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(extractPrompt, lead.Company, text)},
		},
	})
	if err != nil {
		return nil, &ExtractError{Kind: ExtractInfra, Err: eris.Wrap(err, "extract: create message")}
	}

	resp.Usage.LogCost(e.model, "extract")

	cand, err := parseCandidate(resp.Text())
	if err != nil {
		return nil, &ExtractError{Kind: ExtractNoData, Err: err}
	}
	return cand, nil
}

// parseCandidate decodes the model's JSON response into a Candidate. JSON
// nulls leave the corresponding fields empty.
func parseCandidate(text string) (*model.Candidate, error) {
	cleaned := cleanJSON(text)

	var raw struct {
		FirstName  string  `json:"first_name"`
		LastName   string  `json:"last_name"`
		Street     string  `json:"street"`
		City       string  `json:"city"`
		State      string  `json:"state"`
		PostalCode string  `json:"postal_code"`
		Country    string  `json:"country"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "extract: parse candidate JSON")
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &model.Candidate{
		FirstName: strings.TrimSpace(raw.FirstName),
		LastName:  strings.TrimSpace(raw.LastName),
		Address: model.Address{
			Street:     strings.TrimSpace(raw.Street),
			City:       strings.TrimSpace(raw.City),
			State:      strings.TrimSpace(raw.State),
			PostalCode: strings.TrimSpace(raw.PostalCode),
			Country:    strings.TrimSpace(raw.Country),
		},
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(raw.Reasoning),
	}, nil
}

// cleanJSON strips markdown code fences and extracts the JSON object from
// LLM response text.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
