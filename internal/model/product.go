// Package model defines the catalog record types shared across the pipeline.
package model

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RawProductRecord is an immutable catalog row read from the upstream
// system. The pipeline never writes to it.
type RawProductRecord struct {
	ID            string   `json:"id,omitempty"`
	PartNumber    string   `json:"part_number"`
	Manufacturer  string   `json:"manufacturer"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category,omitempty"`
	UnitOfMeasure string   `json:"unit_of_measure,omitempty"`
	Cost          float64  `json:"cost"`
	Price         float64  `json:"price"`
	InStock       bool     `json:"in_stock"`
	CustomMemo    string   `json:"custom_memo,omitempty"`
	CustomText    string   `json:"custom_text,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ImageURLs     []string `json:"image_urls,omitempty"`
	SpecSheetURLs []string `json:"spec_sheet_urls,omitempty"`
}

// Key returns the normalized store key for this record.
func (r RawProductRecord) Key() RecordKey {
	return NewRecordKey(r.Manufacturer, r.PartNumber)
}

// RecordKey identifies an enriched record by normalized
// (manufacturer, part number).
type RecordKey struct {
	Manufacturer string `json:"manufacturer"`
	PartNumber   string `json:"part_number"`
}

// NewRecordKey normalizes both components: NFKC, lowercase, trimmed,
// inner whitespace collapsed.
func NewRecordKey(manufacturer, partNumber string) RecordKey {
	return RecordKey{
		Manufacturer: NormalizeKeyPart(manufacturer),
		PartNumber:   NormalizeKeyPart(partNumber),
	}
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s", k.Manufacturer, k.PartNumber)
}

// NormalizeKeyPart canonicalizes one key component so that upstream
// formatting differences ("ACME  Corp" vs "acme corp") map to the same key.
func NormalizeKeyPart(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
