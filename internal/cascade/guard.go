package cascade

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Copy-Cascade Guard
//
// Maintains the directed follow graph (follower → leader) and enforces the
// single-hop rule: a copy relationship must terminate at an original
// performer. Chained copying (A copies B who copies C) introduces execution
// delay and price degradation that corrupts both scoring and capital
// outcomes, so a wallet with copy depth > 0 can never be followed.
//
// The graph is an adjacency map keyed by wallet address — no pointer webs,
// no reference cycles during traversal. Depth lookups are memoized and the
// memo is invalidated on every write. A single RWMutex gives concurrent
// readers and globally serialized writers, so a cycle or a followed copier
// can never exist even transiently.

// FollowRepository persists follow edges. The guard is the source of truth
// at runtime; the repository provides durability across restarts.
type FollowRepository interface {
	SaveEdge(ctx context.Context, edge models.FollowEdge) error
	DeactivateEdge(ctx context.Context, follower, leader string) error
	LoadActiveEdges(ctx context.Context) ([]models.FollowEdge, error)
}

// ScoreLookup resolves a wallet's current score for chain visualization.
// Returning ok=false annotates the node with zero score / Bronze.
type ScoreLookup func(address string) (models.TruthScore, bool)

// ValidationResult is the structured outcome of a follow validation.
// Rejections here are expected user-facing outcomes, not errors.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// CopyEligibility answers whether a wallet may be copied.
type CopyEligibility struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	CopyDepth    int    `json:"copyDepth"`
	IsCopyTrader bool   `json:"isCopyTrader"`
}

// CopyStatus is the full copy-trading view of one wallet.
type CopyStatus struct {
	Address        string   `json:"address"`
	IsCopyTrader   bool     `json:"isCopyTrader"`
	CopyDepth      int      `json:"copyDepth"`
	OriginalSource string   `json:"originalSource,omitempty"` // empty when the wallet is itself depth 0
	FollowedBy     []string `json:"followedBy"`
	Following      []string `json:"following"`
}

// Guard is the concurrent follow-graph service.
type Guard struct {
	mu        sync.RWMutex
	following map[string]map[string]bool // follower → active leaders
	followers map[string]map[string]bool // leader → active followers

	// depthMemo has its own lock: depth lookups run under mu.RLock and
	// still need to write the memo.
	memoMu    sync.Mutex
	depthMemo map[string]int

	repo    FollowRepository
	scoreFn ScoreLookup
	log     zerolog.Logger
}

// NewGuard creates an empty guard. repo and scoreFn may be nil (in-memory
// only / unannotated chains).
func NewGuard(repo FollowRepository, scoreFn ScoreLookup, logger zerolog.Logger) *Guard {
	return &Guard{
		following: make(map[string]map[string]bool),
		followers: make(map[string]map[string]bool),
		depthMemo: make(map[string]int),
		repo:      repo,
		scoreFn:   scoreFn,
		log:       logger.With().Str("component", "cascade").Logger(),
	}
}

// Load hydrates the in-memory graph from persisted active edges.
func (g *Guard) Load(ctx context.Context) error {
	if g.repo == nil {
		return nil
	}
	edges, err := g.repo.LoadActiveEdges(ctx)
	if err != nil {
		return fmt.Errorf("load follow edges: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range edges {
		g.addEdgeLocked(e.Follower, e.Leader)
	}
	g.clearDepthMemo()
	g.log.Info().Int("edges", len(edges)).Msg("follow graph loaded")
	return nil
}

// CopyDepth returns the number of hops back to an original wallet that
// follows no one. Unknown wallets default to 0. Repeated calls with no
// graph mutation return the same value.
func (g *Guard) CopyDepth(address string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.depthLocked(address)
}

// CanBeCopied reports whether the wallet may act as a leader. Only depth-0
// wallets qualify: copy relationships never chain.
func (g *Guard) CanBeCopied(address string) CopyEligibility {
	g.mu.RLock()
	defer g.mu.RUnlock()

	depth := g.depthLocked(address)
	if depth > 0 {
		return CopyEligibility{
			Allowed:      false,
			Reason:       "wallet is a copy trader; only original sources can be copied",
			CopyDepth:    depth,
			IsCopyTrader: true,
		}
	}
	return CopyEligibility{Allowed: true, CopyDepth: 0}
}

// Status returns the wallet's full copy-trading view.
func (g *Guard) Status(address string) CopyStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	depth := g.depthLocked(address)
	st := CopyStatus{
		Address:      address,
		IsCopyTrader: depth > 0,
		CopyDepth:    depth,
		FollowedBy:   sortedKeys(g.followers[address]),
		Following:    sortedKeys(g.following[address]),
	}
	if depth > 0 {
		st.OriginalSource = g.originalSourceLocked(address)
	}
	return st
}

// ValidateFollow checks whether a follower→leader edge would be accepted.
// Read-only: the authoritative check is repeated inside Follow under the
// write lock.
func (g *Guard) ValidateFollow(follower, leader string) ValidationResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validateLocked(follower, leader)
}

// Follow creates an active edge after validation, writing through to the
// repository. Validation failures come back as a ValidationResult, not an
// error; errors are reserved for persistence failures.
func (g *Guard) Follow(ctx context.Context, follower, leader string) (ValidationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := g.validateLocked(follower, leader)
	if !res.Valid {
		return res, nil
	}

	edge := models.FollowEdge{
		Follower:  follower,
		Leader:    leader,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if g.repo != nil {
		if err := g.repo.SaveEdge(ctx, edge); err != nil {
			return ValidationResult{}, fmt.Errorf("persist follow edge: %w", err)
		}
	}

	g.addEdgeLocked(follower, leader)
	g.clearDepthMemo()
	g.log.Info().Str("follower", follower).Str("leader", leader).Msg("follow created")
	return res, nil
}

// Unfollow deactivates the edge. Unknown edges are a structured rejection.
func (g *Guard) Unfollow(ctx context.Context, follower, leader string) (ValidationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.following[follower][leader] {
		return ValidationResult{Valid: false, Error: "no active follow relationship"}, nil
	}

	if g.repo != nil {
		if err := g.repo.DeactivateEdge(ctx, follower, leader); err != nil {
			return ValidationResult{}, fmt.Errorf("deactivate follow edge: %w", err)
		}
	}

	delete(g.following[follower], leader)
	delete(g.followers[leader], follower)
	g.clearDepthMemo()
	g.log.Info().Str("follower", follower).Str("leader", leader).Msg("follow removed")
	return ValidationResult{Valid: true}, nil
}

// ActiveEdgeCount returns the number of active follow edges.
func (g *Guard) ActiveEdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, leaders := range g.following {
		n += len(leaders)
	}
	return n
}

// Chain walks from the wallet up to its original source, annotating each
// hop with tier and score for display. Purely derived, no side effects.
func (g *Guard) Chain(address string) []models.CopyChainNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var chain []models.CopyChainNode
	seen := make(map[string]bool)
	current := address

	for current != "" && !seen[current] {
		seen[current] = true
		node := models.CopyChainNode{
			Address: current,
			Depth:   g.depthLocked(current),
			Tier:    models.TierBronze,
		}
		if g.scoreFn != nil {
			if score, ok := g.scoreFn(current); ok {
				node.Tier = score.Tier
				node.Score = score.Total
			}
		}
		chain = append(chain, node)
		current = g.deepestLeaderLocked(current)
	}
	return chain
}

// ─── internals (callers hold the lock) ─────────────────────────────────

func (g *Guard) addEdgeLocked(follower, leader string) {
	if g.following[follower] == nil {
		g.following[follower] = make(map[string]bool)
	}
	if g.followers[leader] == nil {
		g.followers[leader] = make(map[string]bool)
	}
	g.following[follower][leader] = true
	g.followers[leader][follower] = true
}

func (g *Guard) validateLocked(follower, leader string) ValidationResult {
	if follower == "" || leader == "" {
		return ValidationResult{Valid: false, Error: "follower and leader addresses are required"}
	}
	if follower == leader {
		return ValidationResult{Valid: false, Error: "cannot follow yourself"}
	}
	if g.following[follower][leader] {
		return ValidationResult{Valid: false, Error: "already following this wallet"}
	}
	// Single-hop rule enforced at edge creation, not just at read time.
	if g.depthLocked(leader) > 0 {
		return ValidationResult{Valid: false, Error: "leader is a copy trader; cannot follow a copier"}
	}
	if g.reachableLocked(leader, follower) {
		return ValidationResult{Valid: false, Error: "follow would create a cycle"}
	}
	return ValidationResult{Valid: true}
}

// depthLocked computes memoized copy depth: 0 for wallets following no one,
// else 1 + max over active leaders. The visited set makes traversal total
// even if a cycle were ever forced into persisted state.
// clearDepthMemo invalidates all memoized depths. Called on every graph
// write, holding mu.
func (g *Guard) clearDepthMemo() {
	g.memoMu.Lock()
	g.depthMemo = make(map[string]int)
	g.memoMu.Unlock()
}

func (g *Guard) depthLocked(address string) int {
	g.memoMu.Lock()
	d, ok := g.depthMemo[address]
	g.memoMu.Unlock()
	if ok {
		return d
	}

	d = g.depthWalk(address, map[string]bool{})

	g.memoMu.Lock()
	g.depthMemo[address] = d
	g.memoMu.Unlock()
	return d
}

func (g *Guard) depthWalk(address string, visiting map[string]bool) int {
	leaders := g.following[address]
	if len(leaders) == 0 {
		return 0
	}
	if visiting[address] {
		return 0
	}
	visiting[address] = true

	maxDepth := 0
	for leader := range leaders {
		if d := g.depthWalk(leader, visiting); d > maxDepth {
			maxDepth = d
		}
	}
	delete(visiting, address)
	return 1 + maxDepth
}

// reachableLocked reports whether `to` is reachable from `from` along
// follow edges (BFS).
func (g *Guard) reachableLocked(from, to string) bool {
	queue := []string{from}
	seen := map[string]bool{from: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for leader := range g.following[cur] {
			if leader == to {
				return true
			}
			if !seen[leader] {
				seen[leader] = true
				queue = append(queue, leader)
			}
		}
	}
	return false
}

// deepestLeaderLocked picks the next hop toward the original source: the
// leader on the max-depth path, ties broken lexicographically so chains are
// deterministic.
func (g *Guard) deepestLeaderLocked(address string) string {
	leaders := sortedKeys(g.following[address])
	best := ""
	bestDepth := -1
	for _, leader := range leaders {
		if d := g.depthLocked(leader); d > bestDepth {
			best, bestDepth = leader, d
		}
	}
	return best
}

// originalSourceLocked walks leaders to the depth-0 wallet this copy chain
// terminates at.
func (g *Guard) originalSourceLocked(address string) string {
	seen := make(map[string]bool)
	current := address
	for {
		next := g.deepestLeaderLocked(current)
		if next == "" || seen[next] {
			break
		}
		seen[next] = true
		current = next
	}
	if current == address {
		return ""
	}
	return current
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
