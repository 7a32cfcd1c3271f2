package reuse

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/reuse/blockmap"
	"github.com/outofforest/reuse/pattern"
	"github.com/outofforest/reuse/scope"
	"github.com/outofforest/reuse/tree"
	"github.com/outofforest/reuse/types"
)

// Stats stores the counters of the session.
type Stats struct {
	Events          [types.NumOfEventTypes]uint64
	Batches         uint64
	InvalidEvents   uint64
	SampledOut      uint64
	ColdMisses      uint64
	Reuses          uint64
	ScopeErrors     uint64
	BypassPaired    uint64
	BypassConfirmed uint64
	BypassDiscarded uint64
	ResidualScopes  uint64
	Blocks          uint64
	Pages           uint64
}

func (s *Stats) add(other Stats) {
	for i := range s.Events {
		s.Events[i] += other.Events[i]
	}
	s.Batches += other.Batches
	s.InvalidEvents += other.InvalidEvents
	s.SampledOut += other.SampledOut
	s.ColdMisses += other.ColdMisses
	s.Reuses += other.Reuses
	s.ScopeErrors += other.ScopeErrors
	s.BypassPaired += other.BypassPaired
	s.BypassConfirmed += other.BypassConfirmed
	s.BypassDiscarded += other.BypassDiscarded
	s.ResidualScopes += other.ResidualScopes
	s.Blocks += other.Blocks
	s.Pages += other.Pages
}

// NewSession creates new session analyzing the event stream of one thread.
func NewSession(ctx context.Context, config Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	t, err := tree.New(tree.Config{
		MaxPathLength: config.MaxPathLength,
		Arena:         tree.DefaultConfig.Arena,
	})
	if err != nil {
		return nil, err
	}

	blocks, err := blockmap.New(blockmap.Config{
		BlockShift: config.BlockShift,
		SampleMask: config.SampleMask,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		config:      config,
		log:         logger.Get(ctx),
		tree:        t,
		blocks:      blocks,
		patterns:    pattern.NewAggregator(),
		diagnostics: scope.NewDiagnostics(config.ProfileErrors),
	}
	s.stack = scope.New(scope.Config{
		Tree:         config.ScopeTree,
		Diagnostics:  s.diagnostics,
		StrictChecks: config.StrictScopeChecks,
		OnClose:      s.closeScope,
	})

	if config.Metrics != nil {
		config.Metrics.Sessions.Inc()
	}

	return s, nil
}

// Session computes reuse distances for the event stream of one thread. Session must not be used concurrently.
type Session struct {
	config Config
	log    *zap.Logger

	tree        *tree.Tree
	blocks      *blockmap.Map
	stack       *scope.Stack
	patterns    *pattern.Aggregator
	diagnostics *scope.Diagnostics

	clock         uint64
	pendingBypass bool
	bypassEdge    types.EdgeKind

	stats    Stats
	reported Stats
	closed   bool
}

// Process processes the batch of events. Events must be delivered in the order they were produced.
func (s *Session) Process(batch []types.Event) error {
	if s.closed {
		return errors.New("session is closed")
	}

	s.stats.Batches++
	for i := range batch {
		if err := s.process(&batch[i]); err != nil {
			return err
		}
	}
	s.reportMetrics()
	return nil
}

// Stats returns current counters of the session.
func (s *Session) Stats() Stats {
	stats := s.stats
	stats.ScopeErrors = s.diagnostics.Total()
	stats.Blocks = s.tree.Len()
	stats.Pages = s.blocks.Pages()
	return stats
}

// Close purges the scope stack and returns the report. Session can't be used after closing.
func (s *Session) Close() (*Report, error) {
	if s.closed {
		return nil, errors.New("session is closed")
	}
	s.closed = true

	if s.pendingBypass {
		s.resolveBypass()
	}
	s.stats.ResidualScopes = s.stack.Purge()
	s.reportMetrics()
	if s.config.Metrics != nil {
		s.config.Metrics.Sessions.Dec()
	}

	stats := s.Stats()
	s.log.Info("Session closed",
		zap.Uint64("batches", stats.Batches),
		zap.Uint64("blocks", stats.Blocks),
		zap.Uint64("coldMisses", stats.ColdMisses),
		zap.Uint64("reuses", stats.Reuses),
		zap.Uint64("residualScopes", stats.ResidualScopes),
		zap.Uint64("scopeErrors", stats.ScopeErrors))
	if stats.InvalidEvents > 0 {
		s.log.Warn("Invalid events skipped", zap.Uint64("count", stats.InvalidEvents))
	}

	return newReport(s.config, stats, s.patterns, s.diagnostics), nil
}

func (s *Session) process(event *types.Event) error {
	if event.Type == types.EventInvalid || event.Type >= types.NumOfEventTypes {
		s.stats.InvalidEvents++
		return nil
	}
	s.stats.Events[event.Type]++

	if s.pendingBypass {
		s.pendingBypass = false
		if event.Type == types.EventAfterCall {
			s.stats.BypassPaired++
			return nil
		}
		s.resolveBypass()
	}

	switch event.Type {
	case types.EventMemLoad, types.EventMemStore:
		return s.access(event)
	case types.EventEnterScope, types.EventRoutineEntry:
		s.stack.Enter(event.Address, event.Image, event.ID, s.clock)
	case types.EventIterChange:
		s.stack.IterChange(*event, s.clock)
	case types.EventExitScope:
		s.stack.Exit(*event)
	case types.EventAfterCall:
		s.stack.AfterCall(*event)
	case types.EventBrBypassCall:
		s.pendingBypass = true
		s.bypassEdge = event.Edge
	}
	return nil
}

// resolveBypass accounts the bypass not followed by the return to the call site.
func (s *Session) resolveBypass() {
	if s.bypassEdge == types.EdgeIndirectBranch {
		s.stats.BypassDiscarded++
		return
	}
	s.stats.BypassConfirmed++
}

func (s *Session) access(event *types.Event) error {
	if s.blocks.Block(event.Address)&s.config.SampleMask != s.config.SampleValue {
		s.stats.SampledOut++
		return nil
	}

	s.clock++

	inst := s.patterns.Instruction(types.InstructionKey{Image: event.Image, ID: event.ID})
	inst.Accesses++

	slot := s.blocks.Lookup(event.Address)
	if slot.Node == 0 {
		nodeAddress, err := s.tree.ColdMiss(s.clock)
		if err != nil {
			return errors.Wrap(err, "allocating block failed")
		}
		slot.Node = nodeAddress
		inst.ColdMisses++
		s.stats.ColdMisses++
	} else {
		var carrier types.Carrier
		if s.config.computeCarry() {
			carrier = s.stack.Resolve(s.tree.Node(slot.Node).Key)
		}

		distance := s.tree.ReuseBlock(slot.Node, s.clock)
		if s.config.ApproximateDistances {
			distance = pattern.Approximate(distance)
		}
		inst.Insert(slot.Source, carrier).Update(distance)
		s.stats.Reuses++
	}

	if event.SourceScope != 0 {
		slot.Source = types.Source{Image: event.Image, Kind: types.SourceScope, ID: event.SourceScope}
	} else {
		slot.Source = types.Source{Image: event.Image, Kind: types.SourceInstruction, ID: event.ID}
	}
	return nil
}

func (s *Session) closeScope(frame scope.Frame) {
	if !s.config.ComputeFootprint {
		return
	}
	s.patterns.Footprint(types.ScopeKey{Image: frame.Image, ID: frame.Scope}).
		Update(s.tree.CountBlocks(frame.EnterTime))
}

func (s *Session) reportMetrics() {
	if s.config.Metrics == nil {
		return
	}
	stats := s.Stats()
	s.config.Metrics.report(stats, s.reported)
	s.reported = stats
}
