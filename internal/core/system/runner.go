package system

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runPhase executes one phase's batches with the world frozen, then applies
// each system's command buffer in plan order.
func (s *Scheduler) runPhase(p Phase, batches [][]*node, dt float32, report *Report) {
	if len(batches) == 0 {
		return
	}
	tick := report.Tick

	s.world.Freeze()
	for _, batch := range batches {
		s.runBatch(batch, dt, tick)
	}
	// Commands below stamp insertions past every lastRun taken in this phase.
	s.world.AdvanceChangeTick()
	s.world.Thaw()

	for _, batch := range batches {
		for _, n := range batch {
			report.Executed++
			if n.diag != nil {
				report.Diagnostics = append(report.Diagnostics, *n.diag)
				n.diag = nil
			}
			if n.cmds.Len() == 0 {
				continue
			}
			if err := n.cmds.Apply(s.world); err != nil {
				n.log.Warn("command buffer failed", zap.Error(err))
				report.Diagnostics = append(report.Diagnostics, Diagnostic{
					System: n.name, Phase: p, Err: err, Commands: true,
				})
			}
		}
	}
}

// runBatch runs one batch. A single system runs inline; larger batches fan
// out over at most s.workers goroutines.
func (s *Scheduler) runBatch(batch []*node, dt float32, tick uint64) {
	if len(batch) == 1 {
		s.runSystem(batch[0], dt, tick)
		return
	}
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, n := range batch {
		g.Go(func() error {
			s.runSystem(n, dt, tick)
			return nil
		})
	}
	_ = g.Wait()
}

// runSystem calls Update, recording a returned error or recovered panic on
// the node. Only this goroutine touches n during the batch.
func (s *Scheduler) runSystem(n *node, dt float32, tick uint64) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("system panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			n.diag = &Diagnostic{System: n.name, Phase: n.phase, Err: fmt.Errorf("%v", r), Panic: true}
		}
	}()
	ctx := &Context{
		World:    s.world,
		Events:   s.events,
		Commands: &n.cmds,
		Log:      n.log,
		Dt:       dt,
		Tick:     tick,
		LastRun:  n.lastRun,
	}
	n.lastRun = s.world.ChangeTick()
	if err := n.sys.Update(ctx); err != nil {
		n.log.Warn("system failed", zap.Error(err))
		n.diag = &Diagnostic{System: n.name, Phase: n.phase, Err: err}
	}
}
