package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRecordKey_Normalizes(t *testing.T) {
	k := NewRecordKey("  ACME   Corp ", "AB-100 ")
	assert.Equal(t, "acme corp", k.Manufacturer)
	assert.Equal(t, "ab-100", k.PartNumber)
	assert.Equal(t, "acme corp/ab-100", k.String())
}

func TestNewRecordKey_SameKeyForFormattingVariants(t *testing.T) {
	a := NewRecordKey("Acme Corp", "AB-100")
	b := NewRecordKey("ACME  CORP", " ab-100")
	assert.Equal(t, a, b)
}

func TestBucketFor_Boundaries(t *testing.T) {
	assert.Equal(t, BucketLow, BucketFor(0))
	assert.Equal(t, BucketLow, BucketFor(29))
	assert.Equal(t, BucketMedium, BucketFor(30))
	assert.Equal(t, BucketMedium, BucketFor(79))
	assert.Equal(t, BucketHigh, BucketFor(80))
	assert.Equal(t, BucketHigh, BucketFor(100))
}

func TestClampSynonyms(t *testing.T) {
	long := make([]string, MaxSynonyms+7)
	for i := range long {
		long[i] = "syn"
	}

	s := Sections{
		Identity:   IdentitySection{Synonyms: long},
		Embeddings: EmbeddingsSection{SearchSynonyms: long},
	}
	s.ClampSynonyms()

	assert.Len(t, s.Identity.Synonyms, MaxSynonyms)
	assert.Len(t, s.Embeddings.SearchSynonyms, MaxSynonyms)
}

func TestClampSynonyms_ShortListUntouched(t *testing.T) {
	s := Sections{Identity: IdentitySection{Synonyms: []string{"a", "b"}}}
	s.ClampSynonyms()
	assert.Equal(t, []string{"a", "b"}, s.Identity.Synonyms)
}
