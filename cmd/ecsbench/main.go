// Command ecsbench churns a world through spawn, tick and despawn rounds
// under the profiler.
//
//	go build ./cmd/ecsbench
//	./ecsbench -mode mem
//	go tool pprof -http=":8000" -nodefraction=0.001 ./ecsbench mem.pprof
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/profile"

	"github.com/ecsbridge/ecscore/internal/component"
	"github.com/ecsbridge/ecscore/internal/core/ecs"
	coresys "github.com/ecsbridge/ecscore/internal/core/system"
	"github.com/ecsbridge/ecscore/internal/system"
)

func main() {
	mode := flag.String("mode", "cpu", "profile mode: cpu, mem or none")
	rounds := flag.Int("rounds", 20, "worlds to build")
	ticks := flag.Int("ticks", 500, "ticks per world")
	entities := flag.Int("entities", 10000, "entities per world")
	workers := flag.Int("workers", 0, "scheduler workers, 0 = GOMAXPROCS")
	flag.Parse()

	switch *mode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "none":
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	start := time.Now()
	var checksum uint64
	for range *rounds {
		sum, err := run(*entities, *ticks, *workers)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		checksum ^= sum
	}
	elapsed := time.Since(start)
	total := *rounds * *ticks
	fmt.Printf("%d ticks over %d entities in %s (%s/tick), checksum %016x\n",
		total, *entities, elapsed, elapsed/time.Duration(max(total, 1)), checksum)
}

func run(n, ticks, workers int) (uint64, error) {
	w := ecs.NewWorld(ecs.WithCapacity(n))
	s := coresys.New(w, coresys.WithWorkers(workers))
	if err := s.AddPlugin(&system.Builtins{World: w}); err != nil {
		return 0, err
	}

	ids, err := w.SpawnBatch(n)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		tr := component.IdentityTransform()
		tr.Position.X = float32(i % 100)
		if err := ecs.Add(w, id, tr); err != nil {
			return 0, err
		}
		if err := ecs.Add(w, id, component.Velocity{Linear: component.Vec3{X: 1, Y: float32(i % 3)}}); err != nil {
			return 0, err
		}
		// A tenth of the entities expire partway through.
		if i%10 == 0 {
			if err := ecs.Add(w, id, component.Lifetime{Remaining: float32(i%7) * 0.1}); err != nil {
				return 0, err
			}
		}
	}

	for range ticks {
		if rep := s.Tick(1.0 / 60); !rep.OK() {
			return 0, rep.Err()
		}
	}
	sum := w.Checksum()
	return sum, w.Destroy()
}
