package search

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Settings describes the index schema: which attributes are searchable,
// which are facets, and the custom ranking order. Applying settings is a
// deliberate schema-level operation, independent of data sync.
type Settings struct {
	SearchableAttributes []string `yaml:"searchable_attributes" json:"searchable_attributes"`
	FacetAttributes      []string `yaml:"facet_attributes" json:"facet_attributes"`
	CustomRanking        []string `yaml:"custom_ranking" json:"custom_ranking"`
	SnippetAttributes    []string `yaml:"snippet_attributes" json:"snippet_attributes"`
	HighlightAttributes  []string `yaml:"highlight_attributes" json:"highlight_attributes"`
}

// DefaultSettings returns the fixed storefront schema. The ranking order is
// a contract with merchandising: in-stock first, then cheapest, then the
// best-enriched, with name as the lexicographic tie-break.
func DefaultSettings() Settings {
	return Settings{
		SearchableAttributes: []string{
			"sku", "mpn", "name", "brand", "category",
			"custom_memo", "custom_text", "tags", "search_synonyms", "synonyms",
		},
		FacetAttributes: []string{
			"brand", "category", "availability", "quality_bucket",
		},
		CustomRanking: []string{
			"desc(availability_weight)", "asc(price)", "desc(quality_score)", "asc(name)",
		},
		SnippetAttributes:   []string{"description", "value_statement"},
		HighlightAttributes: []string{"name", "brand", "mpn"},
	}
}

// LoadSettings reads settings overrides from a YAML file. Fields absent from
// the file keep their defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, eris.Wrapf(err, "search: read settings %s", path)
	}

	var overrides Settings
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return settings, eris.Wrapf(err, "search: parse settings %s", path)
	}

	if len(overrides.SearchableAttributes) > 0 {
		settings.SearchableAttributes = overrides.SearchableAttributes
	}
	if len(overrides.FacetAttributes) > 0 {
		settings.FacetAttributes = overrides.FacetAttributes
	}
	if len(overrides.CustomRanking) > 0 {
		settings.CustomRanking = overrides.CustomRanking
	}
	if len(overrides.SnippetAttributes) > 0 {
		settings.SnippetAttributes = overrides.SnippetAttributes
	}
	if len(overrides.HighlightAttributes) > 0 {
		settings.HighlightAttributes = overrides.HighlightAttributes
	}
	return settings, nil
}
