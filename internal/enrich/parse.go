package enrich

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// ParseSections decodes the provider's textual answer into typed sections.
// A malformed answer never fails the item: it degrades to the minimal
// fallback sections and a warning the caller records on the record.
func ParseSections(text string, req Request) (model.Sections, []string) {
	var sections model.Sections
	cleaned := cleanJSON(text)

	if err := json.Unmarshal([]byte(cleaned), &sections); err != nil {
		zap.L().Warn("enrich: unparseable provider response",
			zap.String("part_number", req.PartNumber),
			zap.Error(err),
		)
		return MinimalSections(req), []string{"unparseable provider response: fallback enrichment"}
	}

	// Backfill identity from the raw record when the provider omitted it.
	if sections.Identity.Name == "" {
		sections.Identity.Name = strings.TrimSpace(req.Name)
	}
	if sections.Identity.PartNumber == "" {
		sections.Identity.PartNumber = strings.TrimSpace(req.PartNumber)
	}
	if sections.Identity.Brand == "" {
		sections.Identity.Brand = strings.TrimSpace(req.Manufacturer)
	}

	return sections, nil
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
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
