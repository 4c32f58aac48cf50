package system

import (
	"go.uber.org/zap"

	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/event"
)

// Context is handed to a system for one Update call. Commands is owned by
// the system and applied after its phase completes.
type Context struct {
	World    *ecs.World
	Events   *event.Bus
	Commands *ecs.Commands
	Log      *zap.Logger

	Dt   float32
	Tick uint64
	// LastRun is the world change tick this system last ran at, 0 before
	// its first run.
	LastRun uint64
}

// Query runs q with Since set to LastRun, so Added matches components
// inserted since this system last ran.
func (c *Context) Query(q ecs.Query) (*ecs.QueryIter, error) {
	q.Since = c.LastRun
	return c.World.Query(q)
}
