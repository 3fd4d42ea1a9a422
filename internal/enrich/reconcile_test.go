package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
)

var reconcileNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestBuildUpdate_FillsEmptyFields(t *testing.T) {
	lead := model.Lead{RecordID: "003xx", Company: "Acme Plumbing"}
	cand := model.Candidate{
		FirstName:  "Jane",
		LastName:   "Doe",
		Confidence: 0.85,
	}

	fields := BuildUpdate(lead, cand, reconcileNow)

	assert.Equal(t, "Jane", fields["FirstName"])
	assert.Equal(t, "Jane", fields["Enriched_First_Name__c"])
	assert.Equal(t, "Doe", fields["LastName"])
	assert.Equal(t, "Doe", fields["Enriched_Last_Name__c"])

	// Metadata stamped because substantive fields qualified.
	assert.Equal(t, 0.85, fields["Enrichment_Confidence__c"])
	assert.Equal(t, model.SourceTag, fields["Enrichment_Source__c"])
	assert.Equal(t, true, fields["Enrichment_Completed__c"])
	assert.Equal(t, "2026-03-14T12:00:00Z", fields["Enrichment_Date__c"])
}

func TestBuildUpdate_NeverOverwritesRealValues(t *testing.T) {
	lead := model.Lead{
		RecordID:       "003xx",
		KnownFirstName: "Robert",
		KnownLastName:  "Smith",
	}
	cand := model.Candidate{FirstName: "Jane", LastName: "Doe", Confidence: 0.9}

	fields := BuildUpdate(lead, cand, reconcileNow)

	assert.NotContains(t, fields, "FirstName")
	assert.NotContains(t, fields, "LastName")
	assert.Empty(t, fields, "nothing qualified, so no metadata either")
}

func TestBuildUpdate_PlaceholderExistingIsOverwritable(t *testing.T) {
	lead := model.Lead{
		RecordID:       "003xx",
		KnownFirstName: "Not Found",
		KnownLastName:  "unknown",
	}
	cand := model.Candidate{FirstName: "Jane", LastName: "Doe", Confidence: 0.9}

	fields := BuildUpdate(lead, cand, reconcileNow)

	assert.Equal(t, "Jane", fields["FirstName"])
	assert.Equal(t, "Doe", fields["LastName"])
}

func TestBuildUpdate_PlaceholderCandidateRejected(t *testing.T) {
	lead := model.Lead{RecordID: "003xx"}
	cand := model.Candidate{
		FirstName:  "not found",
		LastName:   "N/A",
		Confidence: 0.3,
	}

	fields := BuildUpdate(lead, cand, reconcileNow)
	assert.Empty(t, fields)
}

func TestBuildUpdate_AddressAndFullAddress(t *testing.T) {
	lead := model.Lead{RecordID: "003xx"}
	cand := model.Candidate{
		Address: model.Address{
			Street:     "123 Main St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62704",
			Country:    "USA",
		},
		Confidence: 0.8,
	}

	fields := BuildUpdate(lead, cand, reconcileNow)

	assert.Equal(t, "123 Main St", fields["Street"])
	assert.Equal(t, "123 Main St", fields["Enriched_Street__c"])
	assert.Equal(t, "Springfield", fields["City"])
	assert.Equal(t, "IL", fields["State"])
	assert.Equal(t, "62704", fields["PostalCode"])
	assert.Equal(t, "USA", fields["Country"])
	assert.Equal(t, "123 Main St, Springfield, IL, 62704, USA", fields["Enriched_Full_Address__c"])
}

func TestBuildUpdate_PartialAddressJoinSkipsInvalid(t *testing.T) {
	lead := model.Lead{RecordID: "003xx"}
	cand := model.Candidate{
		Address: model.Address{
			City:  "Springfield",
			State: "IL",
		},
		Confidence: 0.6,
	}

	fields := BuildUpdate(lead, cand, reconcileNow)

	require.Contains(t, fields, "Enriched_Full_Address__c")
	assert.Equal(t, "Springfield, IL", fields["Enriched_Full_Address__c"])
	assert.NotContains(t, fields, "Street")
	assert.NotContains(t, fields, "PostalCode")
}

func TestBuildUpdate_NoFullAddressWhenNoAddressApplied(t *testing.T) {
	lead := model.Lead{
		RecordID: "003xx",
		KnownAddress: model.Address{
			Street: "9 Existing Ave",
			City:   "Boston",
		},
	}
	cand := model.Candidate{
		FirstName: "Jane",
		Address: model.Address{
			Street: "123 Main St",
			City:   "Springfield",
		},
		Confidence: 0.7,
	}

	fields := BuildUpdate(lead, cand, reconcileNow)

	assert.Contains(t, fields, "FirstName")
	assert.NotContains(t, fields, "Street")
	assert.NotContains(t, fields, "City")
	assert.NotContains(t, fields, "Enriched_Full_Address__c")
}

func TestBuildUpdate_Idempotent(t *testing.T) {
	lead := model.Lead{RecordID: "003xx"}
	cand := model.Candidate{FirstName: "Jane", Confidence: 0.9}

	first := BuildUpdate(lead, cand, reconcileNow)
	second := BuildUpdate(lead, cand, reconcileNow)
	assert.Equal(t, first, second)
}

func TestFullAddress(t *testing.T) {
	assert.Equal(t, "", FullAddress(model.Address{}))
	assert.Equal(t, "Springfield", FullAddress(model.Address{City: "Springfield"}))
	assert.Equal(t, "1 A St, 02134", FullAddress(model.Address{
		Street:     "1 A St",
		City:       "n/a",
		PostalCode: "02134",
	}))
}
