package model

import "time"

// ResultStatus is the terminal processing outcome for a work item.
type ResultStatus string

const (
	ResultStatusSucceeded ResultStatus = "succeeded"
	ResultStatusFailed    ResultStatus = "failed"
	ResultStatusSkipped   ResultStatus = "skipped"
)

// SourceTag identifies the enrichment method on persisted results and CRM
// metadata fields.
const SourceTag = "ai_web_scraping"

// Candidate is the model's proposed enrichment for a lead. Fields the model
// could not support from page text are empty, never placeholder strings.
// A Candidate is ephemeral: it must pass validation and reconciliation
// before any part of it is persisted.
type Candidate struct {
	FirstName  string  `json:"first_name,omitempty"`
	LastName   string  `json:"last_name,omitempty"`
	Address    Address `json:"address,omitempty"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Empty reports whether the candidate carries no substantive values.
func (c Candidate) Empty() bool {
	return c.FirstName == "" && c.LastName == "" &&
		c.Address.Street == "" && c.Address.City == "" && c.Address.State == "" &&
		c.Address.PostalCode == "" && c.Address.Country == ""
}

// EnrichmentResult is the persisted outcome for one lead. It is written
// once per processing attempt, keyed by lead record ID; reprocessing the
// same lead overwrites deterministically.
type EnrichmentResult struct {
	RecordID      string         `json:"record_id"`
	JobID         string         `json:"job_id"`
	Lead          Lead           `json:"lead"`
	Status        ResultStatus   `json:"status"`
	AppliedFields map[string]any `json:"applied_fields,omitempty"`
	Confidence    float64        `json:"confidence"`
	Reasoning     string         `json:"reasoning,omitempty"`
	Source        string         `json:"source"`
	Error         string         `json:"error,omitempty"`
	FetchAttempts int            `json:"fetch_attempts"`
	CRMUpdated    bool           `json:"crm_updated"`
	CRMError      string         `json:"crm_error,omitempty"`
	ReceivedAt    time.Time      `json:"received_at"`
	ProcessedAt   time.Time      `json:"processed_at"`
}

// Job holds the aggregate counters for one batch run. The worker reads jobs
// for reporting only; the dispatcher owns all updates.
type Job struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	RecordsFound   int       `json:"records_found"`
	RecordsQueued  int       `json:"records_queued"`
	WorkersStarted int       `json:"workers_started"`
	CreatedAt      time.Time `json:"created_at"`
}
