package model

import "time"

// MaxSynonyms caps synonym lists wherever they appear in an enriched record.
const MaxSynonyms = 20

// QualityBucket classifies an enriched record by completeness.
type QualityBucket string

const (
	BucketLow    QualityBucket = "low"
	BucketMedium QualityBucket = "medium"
	BucketHigh   QualityBucket = "high"
)

// BucketFor maps a quality score to its bucket. Boundaries are a fixed
// contract: <30 low, >=80 high, otherwise medium.
func BucketFor(score int) QualityBucket {
	switch {
	case score < 30:
		return BucketLow
	case score >= 80:
		return BucketHigh
	default:
		return BucketMedium
	}
}

// Sections holds the recognized enrichment sections. Each section is a
// fixed set of optional fields; any subset may be present.
type Sections struct {
	Identity   IdentitySection   `json:"identity"`
	Marketing  MarketingSection  `json:"marketing"`
	Specs      SpecsSection      `json:"specs"`
	Compliance ComplianceSection `json:"compliance"`
	Embeddings EmbeddingsSection `json:"embeddings"`
}

// IdentitySection carries naming and classification fields.
type IdentitySection struct {
	Name             string   `json:"name,omitempty"`
	PartNumber       string   `json:"part_number,omitempty"`
	Brand            string   `json:"brand,omitempty"`
	Synonyms         []string `json:"synonyms,omitempty"`
	BundleCandidates []string `json:"bundle_candidates,omitempty"`
	RuleTags         []string `json:"rule_tags,omitempty"`
}

// MarketingSection carries copy generated for storefront surfaces.
type MarketingSection struct {
	ValueStatement string   `json:"value_statement,omitempty"`
	ShortBenefits  []string `json:"short_benefits,omitempty"`
	Tone           string   `json:"tone,omitempty"`
}

// SpecsSection carries extracted technical attributes.
type SpecsSection struct {
	Features      []string          `json:"features,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	UnitOfMeasure string            `json:"unit_of_measure,omitempty"`
}

// ComplianceSection carries regulatory tags and risk assessment.
type ComplianceSection struct {
	Tags      []string `json:"tags,omitempty"`
	RiskScore *int     `json:"risk_score,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// EmbeddingsSection carries search-oriented derived text.
type EmbeddingsSection struct {
	SearchSynonyms []string `json:"search_synonyms,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// ClampSynonyms truncates every synonym list to MaxSynonyms entries.
// Provider output is not trusted to honor the cap.
func (s *Sections) ClampSynonyms() {
	if len(s.Identity.Synonyms) > MaxSynonyms {
		s.Identity.Synonyms = s.Identity.Synonyms[:MaxSynonyms]
	}
	if len(s.Embeddings.SearchSynonyms) > MaxSynonyms {
		s.Embeddings.SearchSynonyms = s.Embeddings.SearchSynonyms[:MaxSynonyms]
	}
}

// EnrichedRecord is the persisted enrichment for one catalog item, keyed
// by normalized (manufacturer, part number).
type EnrichedRecord struct {
	Manufacturer  string        `json:"manufacturer"`
	PartNumber    string        `json:"part_number"`
	Sections      Sections      `json:"sections"`
	QualityScore  int           `json:"quality_score"`
	QualityBucket QualityBucket `json:"quality_bucket"`
	RuleTags      []string      `json:"rule_tags,omitempty"`
	Synonyms      []string      `json:"synonyms,omitempty"`
	ImageRef      string        `json:"image_ref,omitempty"`
	SpecRef       string        `json:"spec_ref,omitempty"`
	Hash          string        `json:"hash"`
	Version       string        `json:"version"`
	Warnings      []string      `json:"warnings,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Key returns the record's normalized store key.
func (r EnrichedRecord) Key() RecordKey {
	return NewRecordKey(r.Manufacturer, r.PartNumber)
}
