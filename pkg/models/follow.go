package models

import "time"

// FollowEdge is a directed copy-trading relationship: follower mirrors
// leader. At most one active edge exists per (follower, leader) pair.
// Lifecycle: none → active (valid follow) → inactive (unfollow). Re-following
// after an unfollow creates a fresh edge.
type FollowEdge struct {
	Follower  string    `json:"follower"`
	Leader    string    `json:"leader"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// CopyChainNode is a transient visualization projection of one hop in a
// wallet's copy chain. Recomputed on demand, never persisted.
type CopyChainNode struct {
	Address string  `json:"address"`
	Depth   int     `json:"depth"`
	Tier    Tier    `json:"tier"`
	Score   float64 `json:"score"`
}
