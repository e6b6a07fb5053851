package model

// Community is a cluster of entities at a given hierarchy level.
// Level 0 is the finest clustering; recomputed from scratch each refresh.
type Community struct {
	ID    string `json:"id"` // "{level}-{clusterId}"
	Level int    `json:"level"`

	// Weight is the number of distinct chunks containing member entities.
	Weight int `json:"weight"`
	// Rank is the number of distinct documents containing member entities.
	Rank int `json:"rank"`

	Title   string `json:"title,omitempty"` // at most 4 words
	Summary string `json:"summary,omitempty"`

	Embedding []float32 `json:"-"`

	EntityIDs []string `json:"entity_ids"`
}
