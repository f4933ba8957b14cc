// Churn workload for profiling the storage core.
//
// Profiling:
//
//	go build ./profile/churn
//	CHURN_PROFILE=mem ./churn
//	go tool pprof -http=":8000" -nodefraction=0.001 ./churn mem.pprof
//
// Tuning is read from the environment (optionally via a .env file):
// CHURN_ROUNDS, CHURN_ITERS, CHURN_ENTITIES, CHURN_PROFILE (cpu|mem).
package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/mizushiro/koseki"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
)

type position struct {
	X, Y float32
}

type velocity struct {
	DX, DY float32
}

type health struct {
	HP int
}

var log = logrus.New()

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using process environment")
	}
	log.SetFormatter(&logrus.JSONFormatter{})

	rounds := envInt("CHURN_ROUNDS", 50)
	iters := envInt("CHURN_ITERS", 200)
	entities := envInt("CHURN_ENTITIES", 1000)

	var opts []func(*profile.Profile)
	if os.Getenv("CHURN_PROFILE") == "cpu" {
		opts = append(opts, profile.CPUProfile)
	} else {
		opts = append(opts, profile.MemProfileAllocs)
	}
	opts = append(opts, profile.ProfilePath("."), profile.NoShutdownHook)

	p := profile.Start(opts...)
	run(rounds, iters, entities)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		registry := koseki.NewComponentRegistry()
		posID := koseki.RegisterComponent[position](registry)
		velID := koseki.RegisterComponent[velocity](registry)
		hpID := koseki.RegisterComponent[health](registry)

		cfg := koseki.DefaultEntityManagerConfig()
		cfg.Logger = log
		cfg.CapacityHint = numEntities
		manager := koseki.NewEntityManagerWithConfig(registry, cfg)

		for range iters {
			manager.BeginFrame()
			batch := manager.CreateEntities(numEntities)
			for i, e := range batch {
				if i%2 == 0 {
					manager.AddComponents(e, posID, velID)
				} else {
					manager.AddComponents(e, posID, hpID)
				}
			}
			movers := manager.QueryWithComponentIndex([]koseki.ComponentTypeID{posID, velID}, koseki.CombineAnd)
			for _, e := range movers {
				manager.MarkEntityDirty(e, koseki.DirtyComponentModified, posID)
			}
			manager.DestroyEntities(batch)
			manager.EndFrame()
		}

		stats := manager.GetOptimizationStats()
		log.WithFields(logrus.Fields{
			"entities":   stats.Entities,
			"archetypes": stats.Archetypes.Archetypes,
			"index_kind": stats.Index.Kind.String(),
			"queries":    stats.Index.QueryCount,
		}).Info("round complete")
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.WithField("key", key).Warnf("invalid value %q, using %d", raw, fallback)
		return fallback
	}
	return v
}
