// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package beam

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/trawl/services/miner/clique"
	"github.com/AleutianAI/trawl/services/miner/hypergraph"
)

const (
	// DefaultBeamSize is the default beam width.
	DefaultBeamSize = 20

	// DefaultAlpha is the default size/density tradeoff.
	DefaultAlpha = 0.5

	// DefaultGlobalThreshold is the default core density validity cutoff.
	DefaultGlobalThreshold = 0.8

	// DefaultLocalThreshold is the default per-core-node density cutoff.
	DefaultLocalThreshold = 0.8

	// DefaultNumToSearch is the default number of sampled starting nodes.
	DefaultNumToSearch = 10

	// DefaultEpochs is the default epoch budget.
	DefaultEpochs = 20

	// DefaultMaxRepeatedScores is the default stagnation window.
	DefaultMaxRepeatedScores = 3

	// DefaultMinDegree is the default admission degree for core nodes.
	DefaultMinDegree = 1
)

const (
	// scoreEpsilon bounds float drift when deciding whether the best
	// score moved between epochs.
	scoreEpsilon = 1e-9

	// initialPriorScore sits below every reachable score, including the
	// dominated score, so the first epoch never reads as a repeat.
	initialPriorScore = 2 * clique.DominatedScore

	// seedStream selects the PCG stream used for seed sampling.
	seedStream = 0x9e3779b97f4a7c15
)

// Options configures a beam search run.
//
// The zero value is a permissive configuration: alpha 0, no validity
// thresholds, no pruning. Use DefaultOptions for the tuned defaults.
// Integer fields that must be positive treat zero as "use the default";
// fields where zero is meaningful (MinDegree, MaxCoreSize, Workers,
// RandSeed) are taken literally.
type Options struct {
	// BeamSize caps how many candidates survive each epoch.
	// Zero means DefaultBeamSize.
	BeamSize int `json:"beam_size" yaml:"beam_size"`

	// Alpha trades clique size against density in the scalar score.
	// Must lie in [0, 1].
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// GlobalThreshold is the minimum core edge density a candidate
	// needs to be valid. Must lie in [0, 1].
	GlobalThreshold float64 `json:"global_threshold" yaml:"global_threshold"`

	// LocalThreshold is the minimum local density every core node of a
	// valid candidate must reach. Must lie in [0, 1].
	LocalThreshold float64 `json:"local_threshold" yaml:"local_threshold"`

	// NumToSearch is how many starting nodes are sampled when no seed
	// clique is supplied. Zero means DefaultNumToSearch.
	NumToSearch int `json:"num_to_search" yaml:"num_to_search"`

	// Epochs caps the number of expansion rounds. Zero means
	// DefaultEpochs.
	Epochs int `json:"epochs" yaml:"epochs"`

	// MaxRepeatedScores stops the run after this many consecutive
	// epochs without best-score movement. Zero means
	// DefaultMaxRepeatedScores.
	MaxRepeatedScores int `json:"max_repeated_scores" yaml:"max_repeated_scores"`

	// MinDegree drops core nodes with fewer incident edges before
	// seeding. Zero disables pruning. Ignored when SeedClique is set,
	// since an explicit seed names the exact nodes the caller wants.
	MinDegree int `json:"min_degree" yaml:"min_degree"`

	// MaxCoreSize stops core-side growth once a candidate holds this
	// many core nodes. Zero means unbounded.
	MaxCoreSize int `json:"max_core_size" yaml:"max_core_size"`

	// Workers bounds the expansion worker pool. Zero sizes the pool
	// from the CPU count. Values above the pool cap are clamped.
	Workers int `json:"workers" yaml:"workers"`

	// RandSeed keys the seed-sampling generator. Runs with equal seeds
	// over equal inputs produce bit-identical results.
	RandSeed int64 `json:"rand_seed" yaml:"rand_seed"`

	// SeedClique, when non-empty, becomes the sole initial candidate in
	// place of sampled single-node seeds. Ids absent from the graph
	// fail the run with clique.ErrUnknownNode before any epoch
	// executes.
	SeedClique []hypergraph.NodeID `json:"seed_clique,omitempty" yaml:"seed_clique,omitempty"`

	// EmitBeam includes the full terminal beam in the Result alongside
	// the best candidate.
	EmitBeam bool `json:"emit_beam" yaml:"emit_beam"`

	// OnEpoch, when set, receives progress after every completed epoch.
	// It runs on the search goroutine and must not block.
	OnEpoch func(EpochStats) `json:"-" yaml:"-"`
}

// DefaultOptions returns the tuned default configuration.
func DefaultOptions() *Options {
	return &Options{
		BeamSize:          DefaultBeamSize,
		Alpha:             DefaultAlpha,
		GlobalThreshold:   DefaultGlobalThreshold,
		LocalThreshold:    DefaultLocalThreshold,
		NumToSearch:       DefaultNumToSearch,
		Epochs:            DefaultEpochs,
		MaxRepeatedScores: DefaultMaxRepeatedScores,
		MinDegree:         DefaultMinDegree,
	}
}

// withDefaults fills the must-be-positive integer fields that were left
// at zero. Fields with a meaningful zero are not touched.
func (o *Options) withDefaults() {
	if o.BeamSize == 0 {
		o.BeamSize = DefaultBeamSize
	}
	if o.NumToSearch == 0 {
		o.NumToSearch = DefaultNumToSearch
	}
	if o.Epochs == 0 {
		o.Epochs = DefaultEpochs
	}
	if o.MaxRepeatedScores == 0 {
		o.MaxRepeatedScores = DefaultMaxRepeatedScores
	}
}

// Resolved returns a copy with zero integer fields replaced by their
// defaults and the seed clique cloned, ready for Validate. New applies
// the same resolution, so passing a resolved copy to New is harmless.
func (o Options) Resolved() Options {
	clone := o
	clone.SeedClique = slices.Clone(o.SeedClique)
	clone.withDefaults()
	return clone
}

// Validate reports whether the options describe a runnable
// configuration. New fills zero integer fields before validating, so a
// literal zero BeamSize only fails here when Validate is called
// directly.
func (o *Options) Validate() error {
	if o.BeamSize <= 0 {
		return fmt.Errorf("%w: beam size %d must be positive", ErrInvalidOptions, o.BeamSize)
	}
	if o.NumToSearch <= 0 {
		return fmt.Errorf("%w: num to search %d must be positive", ErrInvalidOptions, o.NumToSearch)
	}
	if o.Epochs <= 0 {
		return fmt.Errorf("%w: epochs %d must be positive", ErrInvalidOptions, o.Epochs)
	}
	if o.MaxRepeatedScores <= 0 {
		return fmt.Errorf("%w: max repeated scores %d must be positive", ErrInvalidOptions, o.MaxRepeatedScores)
	}
	if o.MinDegree < 0 {
		return fmt.Errorf("%w: min degree %d must be non-negative", ErrInvalidOptions, o.MinDegree)
	}
	if o.MaxCoreSize < 0 {
		return fmt.Errorf("%w: max core size %d must be non-negative", ErrInvalidOptions, o.MaxCoreSize)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers %d must be non-negative", ErrInvalidOptions, o.Workers)
	}
	sc := clique.Scorer{
		Alpha:           o.Alpha,
		GlobalThreshold: o.GlobalThreshold,
		LocalThreshold:  o.LocalThreshold,
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

// StopReason records why a run ended.
type StopReason int

const (
	// StopEpochLimit means the epoch budget ran out.
	StopEpochLimit StopReason = iota
	// StopStagnation means the best score sat still for the configured
	// window of consecutive epochs.
	StopStagnation
	// StopConverged means every beam entry had already been expanded,
	// so further epochs could not change the beam.
	StopConverged
	// StopCancelled means the context was cancelled at an epoch
	// boundary.
	StopCancelled
	// StopEmptyGraph means there was nothing to search: an empty
	// graph, an empty type spec, or a graph emptied by pruning.
	StopEmptyGraph
)

// String returns a stable lowercase name for the stop reason.
func (r StopReason) String() string {
	switch r {
	case StopEpochLimit:
		return "epoch_limit"
	case StopStagnation:
		return "stagnation"
	case StopConverged:
		return "converged"
	case StopCancelled:
		return "cancelled"
	case StopEmptyGraph:
		return "empty_graph"
	default:
		return fmt.Sprintf("stop(%d)", int(r))
	}
}

// MarshalText implements encoding.TextMarshaler so stop reasons render
// as names in JSON output.
func (r StopReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so stored run
// documents decode back to typed stop reasons.
func (r *StopReason) UnmarshalText(text []byte) error {
	switch string(text) {
	case "epoch_limit":
		*r = StopEpochLimit
	case "stagnation":
		*r = StopStagnation
	case "converged":
		*r = StopConverged
	case "cancelled":
		*r = StopCancelled
	case "empty_graph":
		*r = StopEmptyGraph
	default:
		return fmt.Errorf("unknown stop reason %q", text)
	}
	return nil
}

// TypeDensity is the edge density of one declared non-core type within
// a clique.
type TypeDensity struct {
	Type    string  `json:"type"`
	Density float64 `json:"density"`
}

// Clique is an immutable snapshot of a candidate taken at the end of a
// run. NonCoreTypes runs parallel to NonCoreNodes, LocalDensities runs
// parallel to CoreNodes, and TypeDensities covers every declared
// non-core type in declaration order.
type Clique struct {
	CoreNodes      []hypergraph.NodeID `json:"core_nodes"`
	NonCoreNodes   []hypergraph.NodeID `json:"noncore_nodes"`
	NonCoreTypes   []string            `json:"noncore_types"`
	Score          float64             `json:"score"`
	Valid          bool                `json:"valid"`
	GlobalDensity  float64             `json:"global_density"`
	LocalDensities []float64           `json:"local_densities"`
	TypeDensities  []TypeDensity       `json:"type_densities"`
}

// Result is the outcome of a run. Best is nil when no valid candidate
// was ever seen, in which case BestScore is the dominated score. Beam
// is populated only when Options.EmitBeam is set.
type Result struct {
	Best      *Clique       `json:"best,omitempty"`
	Beam      []*Clique     `json:"beam,omitempty"`
	EpochsRun int           `json:"epochs_run"`
	Stop      StopReason    `json:"stop_reason"`
	BestScore float64       `json:"best_score"`
	Duration  time.Duration `json:"duration"`
}

// EpochStats is the per-epoch progress report passed to
// Options.OnEpoch. Expanded counts beam entries expanded this epoch and
// Produced counts the children those expansions generated.
type EpochStats struct {
	Epoch     int     `json:"epoch"`
	BeamWidth int     `json:"beam_width"`
	Expanded  int     `json:"expanded"`
	Produced  int     `json:"produced"`
	BestScore float64 `json:"best_score"`
	Improved  bool    `json:"improved"`
	Stagnant  int     `json:"stagnant"`
}

// scored pairs a candidate with its cached score so ranking never
// recomputes densities.
type scored struct {
	cand  *clique.Candidate
	score float64
	valid bool
}

// Engine runs beam searches over one frozen hypergraph.
type Engine struct {
	graph  *hypergraph.Graph
	opts   Options
	scorer clique.Scorer
}

// New builds an engine over a frozen graph. A nil opts selects
// DefaultOptions. The options are copied, zero integer fields are
// filled, and the result is validated, so a retained opts value can be
// reused or mutated freely by the caller.
func New(g *hypergraph.Graph, opts *Options) (*Engine, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if !g.IsFrozen() {
		return nil, hypergraph.ErrNotFrozen
	}
	resolved := DefaultOptions()
	if opts != nil {
		clone := *opts
		clone.SeedClique = slices.Clone(opts.SeedClique)
		resolved = &clone
	}
	resolved.withDefaults()
	if err := resolved.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		graph: g,
		opts:  *resolved,
		scorer: clique.Scorer{
			Alpha:           resolved.Alpha,
			GlobalThreshold: resolved.GlobalThreshold,
			LocalThreshold:  resolved.LocalThreshold,
		},
	}, nil
}

// Run executes the beam search to completion.
//
// Description:
//
//	Seeds the beam, then repeatedly expands every not-yet-expanded
//	candidate by one node, merges children with the unexpanded
//	originals, deduplicates by canonical key, ranks, and truncates to
//	the beam width. The best valid candidate seen so far is tracked
//	across epochs and returned when the run stops.
//
// Inputs:
//
//	ctx - Checked at epoch boundaries only; an epoch in flight always
//	      completes. Cancellation during the optional pruning phase
//	      aborts with hypergraph.ErrBuildCancelled instead, since no
//	      partial result exists yet.
//
// Outputs:
//
//	*Result - Best candidate, stop reason, epoch count, and optionally
//	          the terminal beam. An empty graph or empty type spec
//	          yields a Result with StopEmptyGraph and no error.
//	error   - ErrInvalidOptions never occurs here (New validates);
//	          clique.ErrUnknownNode when the seed clique names a node
//	          absent from the graph.
//
// Example:
//
//	eng, err := beam.New(g, &beam.Options{GlobalThreshold: 0.9, LocalThreshold: 0.9, RandSeed: 7})
//	if err != nil {
//	    return err
//	}
//	res, err := eng.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	if res.Best != nil {
//	    fmt.Println(res.Best.CoreNodes, res.Best.GlobalDensity)
//	}
//
// Thread Safety:
//
//	Safe against concurrent reads of the graph. Run itself must not be
//	called concurrently on one Engine.
//
// Complexity:
//
//	O(epochs * beam_size * frontier * candidate_size) worst case; the
//	visited-key set keeps repeat expansions from being paid twice.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx, span := startRunSpan(ctx, e.graph, &e.opts)
	defer span.End()

	if e.graph.NodeCount() == 0 || e.graph.Spec().IsEmpty() {
		return e.finish(ctx, span, start, nil, nil, 0, StopEmptyGraph, 0)
	}

	g := e.graph
	if len(e.opts.SeedClique) == 0 && e.opts.MinDegree > 0 {
		pruned, err := g.Prune(ctx, e.opts.MinDegree)
		if err != nil {
			return nil, fmt.Errorf("prune: %w", err)
		}
		g = pruned
		if g.NodeCount() == 0 {
			return e.finish(ctx, span, start, nil, nil, 0, StopEmptyGraph, 0)
		}
	}

	beam, err := e.seedBeam(g)
	if err != nil {
		return nil, err
	}

	var (
		best          *scored
		priorScore    = float64(initialPriorScore)
		stagnant      int
		epochsRun     int
		totalProduced int
		stop          = StopEpochLimit
		visited       = make(map[uint64]struct{}, e.opts.BeamSize*e.opts.Epochs)
	)
	if top := firstValid(beam); top != nil {
		best = top
	}

	for epoch := 1; epoch <= e.opts.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			span.AddEvent("run cancelled", trace.WithAttributes(
				attribute.Int("beam.epoch", epoch),
			))
			stop = StopCancelled
		default:
		}
		if stop == StopCancelled {
			break
		}

		toExpand := make([]*scored, 0, len(beam))
		for _, entry := range beam {
			if _, seen := visited[entry.cand.Key()]; !seen {
				toExpand = append(toExpand, entry)
			}
		}
		if len(toExpand) == 0 {
			stop = StopConverged
			break
		}

		children, err := e.expandBeam(g, toExpand, visited)
		if err != nil {
			return nil, err
		}
		for _, entry := range toExpand {
			visited[entry.cand.Key()] = struct{}{}
		}
		totalProduced += len(children)

		beam = e.mergeAndRank(beam, children)
		epochsRun = epoch

		improved := false
		if top := firstValid(beam); top != nil {
			if best == nil || clique.Compare(top.score, top.cand, best.score, best.cand) < 0 {
				best = top
				improved = true
			}
		}

		bestScore := float64(clique.DominatedScore)
		if best != nil {
			bestScore = best.score
		}
		if math.Abs(bestScore-priorScore) <= scoreEpsilon {
			stagnant++
		} else {
			stagnant = 0
		}
		priorScore = bestScore

		if e.opts.OnEpoch != nil {
			e.opts.OnEpoch(EpochStats{
				Epoch:     epoch,
				BeamWidth: len(beam),
				Expanded:  len(toExpand),
				Produced:  len(children),
				BestScore: bestScore,
				Improved:  improved,
				Stagnant:  stagnant,
			})
		}

		if stagnant >= e.opts.MaxRepeatedScores {
			stop = StopStagnation
			break
		}
	}

	return e.finish(ctx, span, start, best, beam, epochsRun, stop, totalProduced)
}

// finish assembles the Result, records telemetry, and logs completion.
func (e *Engine) finish(
	ctx context.Context,
	span trace.Span,
	start time.Time,
	best *scored,
	beam []*scored,
	epochsRun int,
	stop StopReason,
	produced int,
) (*Result, error) {
	res := &Result{
		EpochsRun: epochsRun,
		Stop:      stop,
		BestScore: clique.DominatedScore,
	}
	if best != nil {
		res.Best = e.snapshot(best)
		res.BestScore = best.score
	}
	if e.opts.EmitBeam {
		res.Beam = make([]*Clique, 0, len(beam))
		for _, entry := range beam {
			res.Beam = append(res.Beam, e.snapshot(entry))
		}
	}
	res.Duration = time.Since(start)

	recordRunMetrics(ctx, res.Duration, epochsRun, produced)
	setRunSpanResult(span, res)
	slog.Debug("beam search complete",
		"epochs", res.EpochsRun,
		"stop", res.Stop.String(),
		"best_score", res.BestScore,
		"beam_width", len(beam),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// seedBeam builds the initial beam: the supplied seed clique when one
// is given, otherwise one single-node candidate for each of up to
// NumToSearch nodes sampled from the working graph.
func (e *Engine) seedBeam(g *hypergraph.Graph) ([]*scored, error) {
	if len(e.opts.SeedClique) > 0 {
		cand, err := clique.SeedSet(g, e.opts.SeedClique)
		if err != nil {
			return nil, fmt.Errorf("seed clique: %w", err)
		}
		return e.rank([]*scored{e.score(cand)}), nil
	}

	ids := make([]hypergraph.NodeID, 0, g.NodeCount())
	ids = append(ids, g.CoreIDs()...)
	ids = append(ids, g.NonCoreIDs()...)
	rng := rand.New(rand.NewPCG(uint64(e.opts.RandSeed), seedStream))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > e.opts.NumToSearch {
		ids = ids[:e.opts.NumToSearch]
	}

	entries := make([]*scored, 0, len(ids))
	for _, id := range ids {
		cand, err := clique.Seed(g, id)
		if err != nil {
			return nil, fmt.Errorf("seed node %d: %w", id, err)
		}
		entries = append(entries, e.score(cand))
	}
	return e.rank(entries), nil
}

// score evaluates one candidate under the engine's scorer.
func (e *Engine) score(cand *clique.Candidate) *scored {
	s, valid := e.scorer.Score(cand)
	return &scored{cand: cand, score: s, valid: valid}
}

// rank sorts entries into beam order and truncates to the beam width.
// The ordering is total, so the result does not depend on the incoming
// order.
func (e *Engine) rank(entries []*scored) []*scored {
	slices.SortFunc(entries, func(a, b *scored) int {
		return clique.Compare(a.score, a.cand, b.score, b.cand)
	})
	if len(entries) > e.opts.BeamSize {
		entries = entries[:e.opts.BeamSize]
	}
	return entries
}

// mergeAndRank folds freshly expanded children into the surviving
// originals, dropping duplicate node sets. Children that rediscover a
// node set already in the beam are content-identical to it, so the
// original is kept.
func (e *Engine) mergeAndRank(beam, children []*scored) []*scored {
	merged := make([]*scored, 0, len(beam)+len(children))
	seen := make(map[uint64]struct{}, len(beam)+len(children))
	for _, entry := range beam {
		seen[entry.cand.Key()] = struct{}{}
		merged = append(merged, entry)
	}
	for _, entry := range children {
		key := entry.cand.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, entry)
	}
	return e.rank(merged)
}

// firstValid returns the top valid entry of a ranked beam. Valid
// entries always outrank dominated ones, so only the head needs
// checking.
func firstValid(beam []*scored) *scored {
	if len(beam) > 0 && beam[0].valid {
		return beam[0]
	}
	return nil
}

// snapshot renders a beam entry into its output form.
func (e *Engine) snapshot(entry *scored) *Clique {
	cand := entry.cand
	g := cand.Graph()
	spec := g.Spec()

	core := cand.CoreMembers()
	locals := make([]float64, len(core))
	for i, id := range core {
		locals[i], _ = cand.LocalDensity(id)
	}

	nonCore := cand.NonCoreMembers()
	types := make([]string, len(nonCore))
	for i, id := range nonCore {
		tid, _ := g.NodeType(id)
		types[i] = spec.TypeName(tid)
	}

	names := spec.NonCoreTypes()
	densities := make([]TypeDensity, 0, len(names))
	for _, name := range names {
		tid, ok := spec.TypeIDOf(name)
		if !ok {
			continue
		}
		densities = append(densities, TypeDensity{Type: name, Density: cand.TypeDensity(tid)})
	}

	return &Clique{
		CoreNodes:      core,
		NonCoreNodes:   nonCore,
		NonCoreTypes:   types,
		Score:          entry.score,
		Valid:          entry.valid,
		GlobalDensity:  cand.GlobalDensity(),
		LocalDensities: locals,
		TypeDensities:  densities,
	}
}
