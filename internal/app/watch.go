package app

import (
	"context"
	"time"
)

// watch publishes the sync queue status for the header and refetches
// everything when the controller becomes reachable again.
func (s *Services) watch(ctx context.Context) {
	transitions, cancel := s.Monitor.Subscribe()
	defer cancel()

	ticker := time.NewTicker(syncPublishTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.State.SetSync(s.Queue.Status())
		case t := <-transitions:
			s.State.SetSync(s.Queue.Status())
			if t.Online {
				s.log.Info().Msg("controller back online, refreshing")
				s.RefreshAll(ctx)
			}
		}
	}
}
