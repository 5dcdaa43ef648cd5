// Package metrics provides application-level counters using stdlib expvar.
// Counters are exported on /debug/vars by the API server.
package metrics

import "expvar"

// Extraction counters.
var (
	ExtractionsTotal = expvar.NewInt("realm_sync_extractions_total")
	CacheHits        = expvar.NewInt("realm_sync_cache_hits_total")
	CacheMisses      = expvar.NewInt("realm_sync_cache_misses_total")
	ChunkFailures    = expvar.NewInt("realm_sync_chunk_failures_total")
)

// Canon counters.
var (
	EntitiesCreated   = expvar.NewInt("realm_sync_entities_created_total")
	FactsCreated      = expvar.NewInt("realm_sync_facts_created_total")
	FactsSkipped      = expvar.NewInt("realm_sync_facts_skipped_total")
	GraphSyncFailures = expvar.NewInt("realm_sync_graph_sync_failures_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

// Add increments the given counter by n.
func Add(counter *expvar.Int, n int) { counter.Add(int64(n)) }
