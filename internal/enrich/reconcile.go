package enrich

import (
	"strings"
	"time"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
)

// Salesforce Lead metadata fields stamped on every substantive update.
const (
	fieldEnrichmentDate       = "Enrichment_Date__c"
	fieldEnrichmentConfidence = "Enrichment_Confidence__c"
	fieldEnrichmentSource     = "Enrichment_Source__c"
	fieldEnrichmentCompleted  = "Enrichment_Completed__c"
	fieldEnrichedFullAddress  = "Enriched_Full_Address__c"
)

// fieldMapping pairs a candidate value with its standard Salesforce field,
// its Enriched_*__c mirror, and the value the CRM currently holds.
type fieldMapping struct {
	standard string
	mirror   string
	value    string
	existing string
}

// BuildUpdate reconciles a candidate against the lead's existing CRM values
// and returns the Salesforce field set to write. A field is included only
// when the candidate value is valid and the existing value is empty or a
// placeholder; the standard field and its enriched mirror are always set
// together. Metadata fields are stamped only when at least one substantive
// field made it in. An empty map means nothing qualified.
func BuildUpdate(lead model.Lead, cand model.Candidate, now time.Time) map[string]any {
	mappings := []fieldMapping{
		{"FirstName", "Enriched_First_Name__c", cand.FirstName, lead.KnownFirstName},
		{"LastName", "Enriched_Last_Name__c", cand.LastName, lead.KnownLastName},
		{"Street", "Enriched_Street__c", cand.Address.Street, lead.KnownAddress.Street},
		{"City", "Enriched_City__c", cand.Address.City, lead.KnownAddress.City},
		{"State", "Enriched_State__c", cand.Address.State, lead.KnownAddress.State},
		{"PostalCode", "Enriched_Postal_Code__c", cand.Address.PostalCode, lead.KnownAddress.PostalCode},
		{"Country", "Enriched_Country__c", cand.Address.Country, lead.KnownAddress.Country},
	}

	fields := make(map[string]any)
	addressApplied := false
	for _, m := range mappings {
		if !IsValidValue(m.value) {
			continue
		}
		if IsValidValue(m.existing) {
			// Never overwrite real CRM data.
			continue
		}
		v := strings.TrimSpace(m.value)
		fields[m.standard] = v
		fields[m.mirror] = v
		if m.standard != "FirstName" && m.standard != "LastName" {
			addressApplied = true
		}
	}

	if addressApplied {
		if full := FullAddress(cand.Address); full != "" {
			fields[fieldEnrichedFullAddress] = full
		}
	}

	if len(fields) == 0 {
		return fields
	}

	fields[fieldEnrichmentDate] = now.UTC().Format(time.RFC3339)
	fields[fieldEnrichmentConfidence] = cand.Confidence
	fields[fieldEnrichmentSource] = model.SourceTag
	fields[fieldEnrichmentCompleted] = true

	return fields
}

// FullAddress joins the valid address components with ", " in
// street, city, state, postal code, country order.
func FullAddress(a model.Address) string {
	var parts []string
	for _, v := range []string{a.Street, a.City, a.State, a.PostalCode, a.Country} {
		if IsValidValue(v) {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	return strings.Join(parts, ", ")
}
