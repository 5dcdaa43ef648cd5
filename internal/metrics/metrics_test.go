package metrics

import (
	"expvar"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersArePublished(t *testing.T) {
	for _, name := range []string{
		"realm_sync_extractions_total",
		"realm_sync_cache_hits_total",
		"realm_sync_facts_skipped_total",
		"realm_sync_graph_sync_failures_total",
	} {
		assert.NotNil(t, expvar.Get(name), name)
	}
}

func TestIncAndAdd(t *testing.T) {
	before := FactsSkipped.Value()
	Inc(FactsSkipped)
	Add(FactsSkipped, 3)
	assert.Equal(t, before+4, FactsSkipped.Value())
}
