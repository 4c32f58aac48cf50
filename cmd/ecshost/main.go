// Command ecshost runs the runtime inside a simulated host: a frame ticker
// drives the subsystem the way an engine's ticker would.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/ecsbridge/ecscore/internal/config"
	"github.com/ecsbridge/ecscore/internal/core/ecs"
	coresys "github.com/ecsbridge/ecscore/internal/core/system"
	"github.com/ecsbridge/ecscore/internal/data"
	"github.com/ecsbridge/ecscore/internal/hostbridge"
	"github.com/ecsbridge/ecscore/internal/inspect"
	"github.com/ecsbridge/ecscore/internal/logging"
	"github.com/ecsbridge/ecscore/internal/scripting"
	"github.com/ecsbridge/ecscore/internal/system"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	ticks      uint64
	view       bool
}

func parseFlags() options {
	var o options
	def := "config/ecshost.toml"
	if p := os.Getenv("ECSHOST_CONFIG"); p != "" {
		def = p
	}
	flag.StringVar(&o.configPath, "config", def, "path to the TOML config")
	flag.Uint64Var(&o.ticks, "ticks", 0, "stop after this many ticks (overrides scheduler.max_ticks)")
	flag.BoolVar(&o.view, "view", false, "show the terminal inspector")
	flag.Parse()
	return o
}

func run() error {
	opts := parseFlags()

	// 1. Load config
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.ticks > 0 {
		cfg.Scheduler.MaxTicks = opts.ticks
	}

	// 2. Init logger. The inspector owns the terminal, so console output
	// is silenced while it runs.
	logCfg := cfg.Logging
	if opts.view {
		logCfg.Level = "fatal"
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Build the subsystem; setup wires components, systems, scripts and the scene.
	var lua *scripting.Engine
	builtins := &system.Builtins{}
	sub := hostbridge.NewSubsystem(
		hostbridge.WithLogger(log),
		hostbridge.WithCapacity(cfg.World.Capacity),
		hostbridge.WithWorkers(cfg.Scheduler.Workers),
		hostbridge.WithSetup(func(w *ecs.World, s *coresys.Scheduler) error {
			builtins.World = w
			if err := s.AddPlugin(builtins); err != nil {
				return err
			}
			if cfg.Scripting.Enabled {
				lua = scripting.NewEngine(w, log.Named("lua"))
				if err := lua.LoadDir(cfg.Scripting.Dir); err != nil {
					return err
				}
				if err := s.AddPlugin(lua); err != nil {
					return err
				}
			}
			if cfg.Scene.Path == "" {
				return nil
			}
			loader := data.NewSceneLoader(w,
				data.WithLoaderLogger(log.Named("scene")),
				data.WithSpawnEvents(s.Events()),
			)
			_, err := loader.SpawnFile(cfg.Scene.Path)
			return err
		}),
	)

	host := hostbridge.NewManualTicker()
	if err := sub.Initialize(host); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := sub.Deinitialize(); err != nil {
			log.Warn("deinitialize", zap.Error(err))
		}
		if lua != nil {
			lua.Close()
		}
	}()

	world, sched := sub.World(), sub.Scheduler()
	log.Info("host ready",
		zap.Stringer("world", world.ID()),
		zap.Int("entities", world.Len()),
		zap.Strings("systems", sched.Systems()),
		zap.Duration("tick_rate", cfg.Scheduler.TickRate),
		zap.String("scene", filepath.Base(cfg.Scene.Path)),
	)

	// 4. Optional inspector
	var view *inspect.Inspector
	var screenEvents chan tcell.Event
	if opts.view {
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("inspector: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("inspector: %w", err)
		}
		defer screen.Fini()
		view = inspect.New(screen, world, sched)
		screenEvents = make(chan tcell.Event, 16)
		go func() {
			for {
				ev := screen.PollEvent()
				if ev == nil {
					close(screenEvents)
					return
				}
				screenEvents <- ev
			}
		}()
	}

	// 5. Frame loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Scheduler.TickRate)
	defer ticker.Stop()

	last := time.Now()
	var frames uint64
	for {
		select {
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			host.Advance(dt)
			frames++

			if frames%100 == 0 {
				log.Debug("world state",
					zap.Uint64("tick", sched.TickCount()),
					zap.Int("entities", world.Len()),
					zap.Uint64("checksum", world.Checksum()),
				)
			}
			if view != nil {
				view.Draw()
			}
			if host.Len() == 0 {
				return errors.New("subsystem detached from the host ticker")
			}
			if cfg.Scheduler.MaxTicks > 0 && frames >= cfg.Scheduler.MaxTicks {
				log.Info("tick limit reached", zap.Uint64("ticks", frames))
				return summary(log, world, sched)
			}
		case ev, ok := <-screenEvents:
			if !ok || !view.HandleEvent(ev) {
				return summary(log, world, sched)
			}
			view.Draw()
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			return summary(log, world, sched)
		}
	}
}

func summary(log *zap.Logger, w *ecs.World, s *coresys.Scheduler) error {
	rep := s.LastReport()
	log.Info("host stopped",
		zap.Uint64("ticks", s.TickCount()),
		zap.Int("entities", w.Len()),
		zap.Int("archetypes", w.ArchetypeCount()),
		zap.Uint64("checksum", w.Checksum()),
	)
	return rep.Err()
}
