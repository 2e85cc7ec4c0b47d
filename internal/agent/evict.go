package agent

import (
	"log"
	"time"
)

// EvictionTTL is how long an agent may stay silent before its entry is
// dropped. Collectors heartbeat every ~30s; this is 10x that.
const EvictionTTL = 5 * time.Minute

// StartEvictionWorker launches a background goroutine that periodically
// drops agents that have stopped heartbeating.
func StartEvictionWorker(r *Registry) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			if n := r.Evict(EvictionTTL); n > 0 {
				log.Printf("evicted %d inactive agent(s)", n)
			}
		}
	}()
}
