package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"perfectpixel/internal/core/port"
)

// Janitor expires stored artifacts that have not been written for longer than the retention window.
type Janitor struct {
	store     port.ArtifactStore
	retention time.Duration
	interval  time.Duration
}

func NewJanitor(store port.ArtifactStore) *Janitor {
	return &Janitor{
		store:     store,
		retention: viper.GetDuration("storage.retention"),
		interval:  viper.GetDuration("storage.sweep_interval"),
	}
}

// Enabled reports whether artifacts expire at all. A zero retention or interval keeps them forever.
func (j *Janitor) Enabled() bool {
	return j.retention > 0 && j.interval > 0
}

// Run sweeps once immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if !j.Enabled() {
		log.Info().Msg("artifact retention disabled")
		return
	}

	for {
		j.Sweep(ctx)

		log.Debug().Time("next", time.Now().Add(j.interval)).Msg("running sweep timer")
		select {
		case <-time.After(j.interval):
		case <-ctx.Done():
			log.Debug().Msg("stopping artifact sweep")
			return
		}
	}
}

// Sweep removes every artifact older than the retention window and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-j.retention)

	removed, err := j.store.Sweep(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("failed to sweep expired artifacts")
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("swept expired artifacts")
	}

	return removed
}
