package detect

import "sort"

// Select picks the authoritative process from a classification, or nil when
// no candidates exist. Direct children are preferred over orphans regardless
// of size; within the chosen bucket the largest resident set wins, on the
// theory that helper subprocesses of the same executable use far less
// memory than the primary worker. Equal-memory ties keep scan order.
func Select(c Classification) *ProcessInfo {
	var candidates []ProcessInfo
	switch {
	case len(c.DirectChildren) > 0:
		candidates = c.DirectChildren
	case len(c.Orphans) > 0:
		candidates = c.Orphans
		log.Debug("no direct children, falling back to orphans", "orphans", len(c.Orphans))
	default:
		return nil
	}

	sorted := make([]ProcessInfo, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ResidentMemoryKB > sorted[j].ResidentMemoryKB
	})

	if len(sorted) > 1 && sorted[0].ResidentMemoryKB == sorted[1].ResidentMemoryKB {
		log.Debug("equal-memory candidates, keeping scan order",
			"pid", sorted[0].PID, "runnerUp", sorted[1].PID)
	}

	main := sorted[0]
	main.IsMainProcess = true
	return &main
}
