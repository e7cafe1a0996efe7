// Package detect locates the authoritative language-server process among
// same-named candidates: classify by process-tree relationship, select by
// policy, with an optional host-supplied hint short-circuiting both.
package detect

import (
	"github.com/lspmon/lspmon/internal/logging"
	"github.com/lspmon/lspmon/internal/procscan"
)

var log = logging.L("detect")

// Relationship labels a candidate's position relative to our own process.
type Relationship string

const (
	DirectChild Relationship = "direct-child"
	// Grandchild is reserved for multi-hop ancestry detection. The current
	// classifier only walks one hop, so this bucket stays empty.
	Grandchild Relationship = "grandchild"
	Orphan     Relationship = "orphan"
)

// ProcessInfo is a classified candidate. IsMainProcess is set by Select.
type ProcessInfo struct {
	procscan.ProcessRecord
	Relationship  Relationship `json:"relationship"`
	IsMainProcess bool         `json:"isMainProcess"`
}

// Classification buckets candidates by relationship. Every input candidate
// lands in exactly one bucket.
type Classification struct {
	DirectChildren []ProcessInfo `json:"directChildren"`
	Grandchildren  []ProcessInfo `json:"grandchildren"`
	Orphans        []ProcessInfo `json:"orphans"`
}

// Total returns the number of classified candidates.
func (c Classification) Total() int {
	return len(c.DirectChildren) + len(c.Grandchildren) + len(c.Orphans)
}

// Classify labels each candidate by its relationship to ourPID. The check
// is deliberately one hop: a candidate parented by ourPID is a direct
// child, everything else is an orphan.
func Classify(ourPID int, candidates []procscan.ProcessRecord) Classification {
	var c Classification
	for _, rec := range candidates {
		info := ProcessInfo{ProcessRecord: rec}
		if rec.ParentPID == ourPID {
			info.Relationship = DirectChild
			c.DirectChildren = append(c.DirectChildren, info)
		} else {
			info.Relationship = Orphan
			c.Orphans = append(c.Orphans, info)
		}
	}
	return c
}
