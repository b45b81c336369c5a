// Package reconcile implements the replication core's reconciliation pass:
// it discovers pairwise clock skews from coincident observations, folds
// every plot into the current leader's time frame, and deduplicates the
// result.
package reconcile

import (
	"math"

	"github.com/dronemesh/replicator/plotstore"
	"github.com/dronemesh/replicator/skewgraph"
)

const (
	timeToleranceSeconds = 15
	positionTolerance    = 1e-5
)

// Stats summarizes one call to Reconcile, for logging and metrics.
type Stats struct {
	Leader          int32
	SkewEdgesAdded  int
	PlotsTranslated int
	PlotsDeduped    int
	PlotsUntouched  int
}

// Reconcile scans store for coincident observations, updates graph with any
// newly inferred skews, translates every plot it can into the current
// leader's time frame, sorts, and deduplicates. It never fails: plots whose
// node has no known path to the leader are left untouched, to be retried on
// a later pass once more skews are known.
func Reconcile(store *plotstore.Store, graph *skewgraph.Graph) Stats {
	var stats Stats

	store.View(func(v *plotstore.View) {
		if v.Size() == 0 {
			return
		}

		stats.SkewEdgesAdded = discoverSkews(v, graph)

		leader := pickLeader(v)
		stats.Leader = leader

		stats.PlotsTranslated, stats.PlotsUntouched = translate(v, graph, leader)

		v.SortByTime()

		stats.PlotsDeduped = dedupe(v)
	})

	return stats
}

// equivalent is the coincidence predicate: same drone, close in time and
// nearly identical in position. Node ids are compared by the caller: skew
// discovery requires them to differ, dedupe requires them to match.
func equivalent(a, b *plotstore.Plot) bool {
	if a.DroneID != b.DroneID {
		return false
	}
	dt := a.Timestamp - b.Timestamp
	if dt < 0 {
		dt = -dt
	}
	if dt > timeToleranceSeconds {
		return false
	}
	return absFloat32(a.Latitude-b.Latitude) <= positionTolerance &&
		absFloat32(a.Longitude-b.Longitude) <= positionTolerance
}

func absFloat32(f float32) float32 {
	return float32(math.Abs(float64(f)))
}

// discoverSkews scans the store for pairs of plots that are coincident
// observations by different nodes, recording a skew edge for each unseen
// pair. Only plots currently flagged NewlyReceived are probed, but each
// probe is compared against every plot in the store, which guarantees
// coincidences between two freshly arrived plots are found, since both
// sides of such a pair are probes.
func discoverSkews(v *plotstore.View, graph *skewgraph.Graph) int {
	before := graph.Len()

	v.Each(func(probeIt plotstore.Iterator) bool {
		probe := probeIt.Plot()
		if !probe.HasFlag(plotstore.NewlyReceived) {
			return true
		}
		v.Each(func(otherIt plotstore.Iterator) bool {
			other := otherIt.Plot()
			if other.NodeID == probe.NodeID {
				return true
			}
			if !equivalent(probe, other) {
				return true
			}
			graph.Record(probe.NodeID, other.NodeID, other.Timestamp-probe.Timestamp)
			return true
		})
		return true
	})

	return graph.Len() - before
}

// pickLeader returns the smallest node id present in the store.
func pickLeader(v *plotstore.View) int32 {
	var leader int32
	first := true
	v.Each(func(it plotstore.Iterator) bool {
		id := it.Plot().NodeID
		if first || id < leader {
			leader = id
			first = false
		}
		return true
	})
	return leader
}

// translate folds every plot's timestamp into the leader's time frame where
// a path is known, clearing NewlyReceived on success. Plots with no known
// path to the leader are left exactly as they are.
func translate(v *plotstore.View, graph *skewgraph.Graph, leader int32) (translated, untouched int) {
	v.Each(func(it plotstore.Iterator) bool {
		p := it.Plot()
		offset, ok := graph.Lookup(p.NodeID, leader)
		if !ok {
			untouched++
			return true
		}
		p.Timestamp += offset
		p.NodeID = leader
		p.ClearFlag(plotstore.NewlyReceived)
		translated++
		return true
	})
	return translated, untouched
}

// dedupe walks the (now time-sorted) store with two cursors, erasing the
// trailing one whenever it is equivalent to the leading one.
func dedupe(v *plotstore.View) int {
	removed := 0
	prev := v.Front()
	if !prev.Valid() {
		return 0
	}
	next := prev.Next()
	for next.Valid() {
		if equivalent(prev.Plot(), next.Plot()) && prev.Plot().NodeID == next.Plot().NodeID {
			next = v.Erase(next)
			removed++
			continue
		}
		prev = next
		next = next.Next()
	}
	return removed
}
