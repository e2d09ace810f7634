package httpcache

import (
	"context"
	"fmt"
	"time"

	"github.com/always-cache/httpcache/cache"
)

type sweepCandidate struct {
	key     string
	version string
}

// Sweep deletes the records that are not immutable and whose age at time now
// exceeds the ceiling. A record is only deleted if it was not written since it
// was read: records changed underfoot are skipped, not retried.
// It returns the number of deleted records.
func (s *Store) Sweep(ctx context.Context, now time.Time, ceiling time.Duration) (int, error) {
	candidates := make([]sweepCandidate, 0)
	err := s.provider.Scan(ctx, s.keyer.NamespacePrefix(), func(e cache.Entry) bool {
		rec, err := recordFromEntry(e)
		if err != nil {
			s.log.Warn().Err(err).Str("key", e.Key).Msg("Sweeping unreadable record")
			candidates = append(candidates, sweepCandidate{e.Key, e.Version})
			return true
		}
		if !rec.Immutable() && rec.CurrentAge(now) > ceiling {
			candidates = append(candidates, sweepCandidate{e.Key, e.Version})
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	deleted := 0
	for _, c := range candidates {
		ok, err := s.provider.DeleteVersion(ctx, c.key, c.version)
		if err != nil {
			return deleted, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		if ok {
			deleted++
		} else {
			s.log.Trace().Str("key", c.key).Msg("Record changed while sweeping, skipping")
		}
	}
	s.log.Debug().Int("candidates", len(candidates)).Int("deleted", deleted).Msg("Swept cache")
	return deleted, nil
}

// StartSweeper runs Sweep every interval until the context is done.
// The returned channel is closed when the loop has stopped.
func (s *Store) StartSweeper(ctx context.Context, interval, ceiling time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.log.Info().Msgf("Starting sweep loop with interval %s and ceiling %s", interval, ceiling)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("Stopping sweep loop")
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx, s.now(), ceiling); err != nil && ctx.Err() == nil {
					s.log.Error().Err(err).Msg("Could not sweep cache")
				}
			}
		}
	}()
	return done
}
