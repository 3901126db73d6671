// Package contenthash fingerprints the enrichment-relevant projection of a
// raw catalog record. A matching fingerprint means nothing the AI provider
// would see has changed, so the pipeline can skip the item entirely.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// maxDescriptionRunes bounds the description contribution so trailing edits
// to very long descriptions do not force re-enrichment.
const maxDescriptionRunes = 1000

// projection covers every field the enrichment prompt carries. Field order
// is fixed by the struct declaration, so the same input always produces the
// same bytes.
type projection struct {
	PartNumber    string   `json:"part_number"`
	Name          string   `json:"name"`
	Manufacturer  string   `json:"manufacturer"`
	Category      string   `json:"category"`
	UnitOfMeasure string   `json:"unit_of_measure"`
	Description   string   `json:"description"`
	CustomMemo    string   `json:"custom_memo"`
	CustomText    string   `json:"custom_text"`
	Tags          []string `json:"tags,omitempty"`
}

// Compute returns the SHA-256 hex fingerprint of the record's
// enrichment-relevant projection.
func Compute(r model.RawProductRecord) string {
	p := projection{
		PartNumber:    model.NormalizeKeyPart(r.PartNumber),
		Name:          strings.TrimSpace(r.Name),
		Manufacturer:  model.NormalizeKeyPart(r.Manufacturer),
		Category:      strings.TrimSpace(r.Category),
		UnitOfMeasure: strings.TrimSpace(r.UnitOfMeasure),
		Description:   truncateRunes(strings.TrimSpace(r.Description), maxDescriptionRunes),
		CustomMemo:    strings.TrimSpace(r.CustomMemo),
		CustomText:    strings.TrimSpace(r.CustomText),
		Tags:          trimTags(r.Tags),
	}

	// Marshal of a flat struct of strings cannot fail.
	b, _ := json.Marshal(p)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// trimTags trims each tag and drops empties, preserving order. Tag order
// changes the prompt, so it changes the fingerprint too.
func trimTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
