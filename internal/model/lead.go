// Package model defines the data shapes shared across the enrichment worker.
package model

import "time"

// Address holds the postal address components of a lead. Any component may
// be empty when unknown.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Lead is the business-contact record to be enriched. The known_* fields
// reflect what the CRM already holds and may contain placeholder strings.
type Lead struct {
	RecordID       string  `json:"record_id"`
	Company        string  `json:"company"`
	Website        string  `json:"website,omitempty"`
	KnownFirstName string  `json:"known_first_name,omitempty"`
	KnownLastName  string  `json:"known_last_name,omitempty"`
	KnownAddress   Address `json:"known_address,omitempty"`
}

// WorkItemParams carries per-run processing options set by the dispatcher.
type WorkItemParams struct {
	// UpdateCRM commits qualifying fields to Salesforce. When nil, the
	// worker falls back to its configured default.
	UpdateCRM *bool `json:"update_crm,omitempty"`
}

// WorkItem is one queue message: a lead plus the job it belongs to.
type WorkItem struct {
	JobID  string         `json:"job_id"`
	Lead   Lead           `json:"lead"`
	Params WorkItemParams `json:"params,omitempty"`

	// ReceiptID is the queue message ID used to acknowledge the item.
	// Set by the consumer, never part of the serialized payload.
	ReceiptID string `json:"-"`
	// EnqueuedAt is when the dispatcher enqueued the item.
	EnqueuedAt time.Time `json:"-"`
}
