package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSections_PlainJSON(t *testing.T) {
	text := `{"identity":{"name":"Widget Pro","synonyms":["widget","wp"]},"marketing":{"value_statement":"Best widget."}}`

	sections, warnings := ParseSections(text, sampleRequest())
	assert.Empty(t, warnings)
	assert.Equal(t, "Widget Pro", sections.Identity.Name)
	assert.Equal(t, []string{"widget", "wp"}, sections.Identity.Synonyms)
	assert.Equal(t, "Best widget.", sections.Marketing.ValueStatement)
}

func TestParseSections_FencedJSON(t *testing.T) {
	text := "```json\n{\"identity\":{\"name\":\"Widget Pro\"}}\n```"

	sections, warnings := ParseSections(text, sampleRequest())
	assert.Empty(t, warnings)
	assert.Equal(t, "Widget Pro", sections.Identity.Name)
}

func TestParseSections_JSONWithPreamble(t *testing.T) {
	text := "Here is the enrichment:\n{\"marketing\":{\"tone\":\"technical\"}}\nDone."

	sections, warnings := ParseSections(text, sampleRequest())
	assert.Empty(t, warnings)
	assert.Equal(t, "technical", sections.Marketing.Tone)
}

func TestParseSections_Garbage_FallsBack(t *testing.T) {
	req := sampleRequest()
	sections, warnings := ParseSections("I could not produce JSON, sorry!", req)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "unparseable")
	// Fallback still carries the known identity fields.
	assert.Equal(t, req.Name, sections.Identity.Name)
	assert.Equal(t, req.PartNumber, sections.Identity.PartNumber)
	assert.Equal(t, req.Manufacturer, sections.Identity.Brand)
}

func TestParseSections_BackfillsIdentity(t *testing.T) {
	req := sampleRequest()
	sections, warnings := ParseSections(`{"specs":{"features":["stainless"]}}`, req)

	assert.Empty(t, warnings)
	assert.Equal(t, req.Name, sections.Identity.Name)
	assert.Equal(t, req.PartNumber, sections.Identity.PartNumber)
	assert.Equal(t, []string{"stainless"}, sections.Specs.Features)
}

func TestCleanJSON_BareFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```\n{\"a\":1}\n```"))
}

func TestMinimalSections(t *testing.T) {
	req := sampleRequest()
	s := MinimalSections(req)
	assert.Equal(t, req.Name, s.Identity.Name)
	assert.Equal(t, req.PartNumber, s.Identity.PartNumber)
	assert.Equal(t, req.Manufacturer, s.Identity.Brand)
	assert.Empty(t, s.Marketing.ValueStatement)
}
