package types

import "time"

type CardAccount struct {
	Identity  string    `json:"identity"`
	CardID    string    `json:"card_id"`
	Unit      string    `json:"unit"`
	Entitled  bool      `json:"entitled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnitStats summarises one organisational unit for dashboards.
type UnitStats struct {
	Unit     string `json:"unit"`
	Total    int    `json:"total"`
	Entitled int    `json:"entitled"`
}

// BucketCount is the number of consumed swipes in one audit bucket, split
// by the swipe window they fell in (index into the configured schedule).
type BucketCount struct {
	Bucket   string `json:"bucket"`
	Total    int    `json:"total"`
	ByWindow []int  `json:"by_window"`
}
