// Package search builds and synchronizes the storefront search index from
// raw catalog records and their enrichments. Index objects are disposable
// projections: every sync fully rebuilds them, nothing is mutated in place.
package search

import (
	"sort"
	"strings"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// SearchIndexObject is the flat document shape the search engine consumes.
// It is a pure function of its two sources: identical inputs produce an
// identical object.
type SearchIndexObject struct {
	ObjectID       string   `json:"objectID"`
	SKU            string   `json:"sku,omitempty"`
	MPN            string   `json:"mpn"`
	Name           string   `json:"name"`
	Brand          string   `json:"brand"`
	Category       string   `json:"category,omitempty"`
	Description    string   `json:"description,omitempty"`
	CustomMemo     string   `json:"custom_memo,omitempty"`
	CustomText     string   `json:"custom_text,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Synonyms       []string `json:"synonyms,omitempty"`
	SearchSynonyms []string `json:"search_synonyms,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`

	Price              float64 `json:"price"`
	Availability       string  `json:"availability"`
	AvailabilityWeight int     `json:"availability_weight"`
	QualityScore       int     `json:"quality_score"`
	QualityBucket      string  `json:"quality_bucket"`

	ValueStatement string `json:"value_statement,omitempty"`
	ImageRef       string `json:"image_ref,omitempty"`
	SpecRef        string `json:"spec_ref,omitempty"`
}

// ObjectID derives the stable document identifier: the normalized
// manufacturer and part number joined, falling back to the part number or
// upstream row ID when a component is missing.
func ObjectID(raw model.RawProductRecord) string {
	key := raw.Key()
	switch {
	case key.Manufacturer != "" && key.PartNumber != "":
		return key.Manufacturer + " " + key.PartNumber
	case key.PartNumber != "":
		return key.PartNumber
	default:
		return raw.ID
	}
}

// BuildObject projects a raw record and its enrichment into the index
// document. enriched may be nil for never-enriched items; the object then
// carries only raw fields.
func BuildObject(raw model.RawProductRecord, enriched *model.EnrichedRecord) SearchIndexObject {
	obj := SearchIndexObject{
		ObjectID:    ObjectID(raw),
		SKU:         strings.TrimSpace(raw.ID),
		MPN:         strings.TrimSpace(raw.PartNumber),
		Name:        strings.TrimSpace(raw.Name),
		Brand:       strings.TrimSpace(raw.Manufacturer),
		Category:    strings.TrimSpace(raw.Category),
		Description: strings.TrimSpace(raw.Description),
		CustomMemo:  strings.TrimSpace(raw.CustomMemo),
		CustomText:  strings.TrimSpace(raw.CustomText),
		Tags:        normalizeList(raw.Tags, 0),
		Price:       raw.Price,
	}

	if raw.InStock {
		obj.Availability = "in_stock"
		obj.AvailabilityWeight = 100
	} else {
		obj.Availability = "out_of_stock"
		obj.AvailabilityWeight = 0
	}

	if enriched == nil {
		return obj
	}

	id := enriched.Sections.Identity
	if id.Name != "" {
		obj.Name = id.Name
	}
	if id.Brand != "" {
		obj.Brand = id.Brand
	}
	obj.Synonyms = normalizeList(id.Synonyms, model.MaxSynonyms)
	obj.SearchSynonyms = normalizeList(enriched.Sections.Embeddings.SearchSynonyms, model.MaxSynonyms)
	obj.Keywords = normalizeList(enriched.Sections.Embeddings.Keywords, 0)

	obj.QualityScore = enriched.QualityScore
	obj.QualityBucket = string(enriched.QualityBucket)
	obj.ValueStatement = enriched.Sections.Marketing.ValueStatement
	obj.ImageRef = enriched.ImageRef
	obj.SpecRef = enriched.SpecRef

	return obj
}

// normalizeList trims, drops empties, dedupes, and sorts so list fields are
// deterministic regardless of provider output order. max 0 means uncapped.
func normalizeList(items []string, max int) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		lower := strings.ToLower(it)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
