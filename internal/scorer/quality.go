// Package scorer computes the completeness score for enriched sections.
// Scoring is a pure function: no I/O, no shared state.
package scorer

import "github.com/sells-group/catalog-enrich/internal/model"

// Field weights. They sum to 100; the score is clipped to [0,100] anyway so
// reweighting individual checks cannot break the bounds contract.
const (
	weightIdentityName     = 10
	weightIdentityPart     = 10
	weightSynonyms         = 10
	weightBundleCandidates = 5
	weightRuleTags         = 5
	weightValueStatement   = 15
	weightShortBenefits    = 10
	weightSpecFeatures     = 15
	weightComplianceTags   = 10
	weightRiskScore        = 10
)

// Score computes the weighted presence score for the given sections and the
// bucket it falls into. More populated fields never lower the score.
func Score(s model.Sections) (int, model.QualityBucket) {
	score := 0

	if s.Identity.Name != "" {
		score += weightIdentityName
	}
	if s.Identity.PartNumber != "" {
		score += weightIdentityPart
	}
	if len(s.Identity.Synonyms) > 0 {
		score += weightSynonyms
	}
	if len(s.Identity.BundleCandidates) > 0 {
		score += weightBundleCandidates
	}
	if len(s.Identity.RuleTags) > 0 {
		score += weightRuleTags
	}
	if s.Marketing.ValueStatement != "" {
		score += weightValueStatement
	}
	if len(s.Marketing.ShortBenefits) > 0 {
		score += weightShortBenefits
	}
	if len(s.Specs.Features) > 0 {
		score += weightSpecFeatures
	}
	if len(s.Compliance.Tags) > 0 {
		score += weightComplianceTags
	}
	if s.Compliance.RiskScore != nil {
		score += weightRiskScore
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score, model.BucketFor(score)
}
