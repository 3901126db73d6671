package enrich

import (
	"fmt"
	"strings"
)

// systemPrompt is identical for every item in a run; it rides in a cached
// system block so repeat calls bill it at the cache-read rate.
const systemPrompt = `You are a catalog enrichment assistant for an industrial parts distributor.
Given one catalog item, respond with a single JSON object and nothing else.
The object must have exactly these top-level keys: "identity", "marketing", "specs", "compliance", "embeddings".

- identity: {"name", "part_number", "brand", "synonyms" (max 20), "bundle_candidates", "rule_tags"}
- marketing: {"value_statement" (one sentence), "short_benefits" (3-5 bullets), "tone"}
- specs: {"features" (list), "attributes" (flat string map), "unit_of_measure"}
- compliance: {"tags", "risk_score" (integer 0-10), "notes"}
- embeddings: {"search_synonyms" (max 20), "keywords"}

Omit fields you cannot derive. Never invent part numbers or certifications.`

// BuildPrompt renders the per-item user payload. Field order is fixed so the
// same record always produces the same prompt, which the response cache and
// the idempotence guarantees depend on.
func BuildPrompt(req Request) string {
	var b strings.Builder

	writeField := func(label, value string) {
		value = strings.TrimSpace(value)
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}

	b.WriteString("Enrich this catalog item:\n\n")
	writeField("Part number", req.PartNumber)
	writeField("Manufacturer", req.Manufacturer)
	writeField("Name", req.Name)
	writeField("Category", req.Category)
	writeField("Unit of measure", req.UnitOfMeasure)
	writeField("Description", req.Description)
	writeField("Memo", req.CustomMemo)
	writeField("Notes", req.CustomText)
	if len(req.Tags) > 0 {
		writeField("Tags", strings.Join(req.Tags, ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}
