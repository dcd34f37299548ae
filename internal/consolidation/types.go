package consolidation

import "time"

// ReasonInsufficientData is reported when the corpus is smaller than
// min_samples. This is a normal outcome, not a fault.
const ReasonInsufficientData = "insufficient_data"

// Abstraction is a recurring pattern promoted from a cluster of episodes.
//
// Abstractions are derived data: every consolidation run recomputes them
// wholesale and replaces the previous set. Each member id references an
// episode that existed in the corpus snapshot the run clustered.
type Abstraction struct {
	// ClusterID is the unique id of this cluster.
	ClusterID string `json:"cluster_id"`

	// Label is a short representative label built from the most frequent
	// terms of the member episodes.
	Label string `json:"label"`

	// Members are the episode ids in this cluster, at least min_samples
	// of them.
	Members []int64 `json:"members"`

	// FormedAt is when the consolidation run produced this cluster.
	FormedAt time.Time `json:"formed_at"`
}

// Outcome reports the result of a consolidation run.
type Outcome struct {
	// Consolidated is true when clustering ran and the abstraction set
	// was replaced.
	Consolidated bool `json:"consolidated"`

	// ClustersFormed is the number of clusters persisted.
	ClustersFormed int `json:"clusters_formed"`

	// Reason explains a skipped run (e.g. insufficient_data). Empty when
	// Consolidated is true.
	Reason string `json:"reason,omitempty"`
}
