package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBlockRetention     = 72 * time.Hour
	DefaultBlockSweepInterval = time.Hour
)

type BlocklistConfig struct {
	Logger        *zerolog.Logger
	Retention     time.Duration
	SweepInterval time.Duration
	// Now overrides time source, used in tests.
	Now func() time.Time
}

// Blocklist holds room keys that cannot be joined after a forced hangup.
type Blocklist struct {
	logger        zerolog.Logger
	mx            *sync.Mutex
	blocked       map[string]time.Time
	now           func() time.Time
	retention     time.Duration
	sweepInterval time.Duration
}

func NewBlocklist(cfg BlocklistConfig) *Blocklist {
	bl := &Blocklist{
		logger:        cfg.Logger.With().Str("component", "blocklist").Logger(),
		mx:            &sync.Mutex{},
		blocked:       make(map[string]time.Time),
		now:           cfg.Now,
		retention:     cfg.Retention,
		sweepInterval: cfg.SweepInterval,
	}
	if bl.now == nil {
		bl.now = time.Now
	}
	if bl.retention <= 0 {
		bl.retention = DefaultBlockRetention
	}
	if bl.sweepInterval <= 0 {
		bl.sweepInterval = DefaultBlockSweepInterval
	}
	return bl
}

func (bl *Blocklist) Block(roomID string) {
	bl.mx.Lock()
	defer bl.mx.Unlock()

	bl.blocked[roomID] = bl.now()
}

// IsBlocked reports whether room is blocked. Entries past retention
// are not considered blocked even if sweep did not purge them yet.
func (bl *Blocklist) IsBlocked(roomID string) bool {
	bl.mx.Lock()
	defer bl.mx.Unlock()

	ts, ok := bl.blocked[roomID]
	if !ok {
		return false
	}
	return bl.now().Sub(ts) < bl.retention
}

// Sweep purges expired entries and returns how many were removed.
func (bl *Blocklist) Sweep() int {
	bl.mx.Lock()
	defer bl.mx.Unlock()

	var (
		n   int
		now = bl.now()
	)
	for roomID, ts := range bl.blocked {
		if now.Sub(ts) >= bl.retention {
			delete(bl.blocked, roomID)
			n++
		}
	}
	return n
}

func (bl *Blocklist) Run(ctx context.Context, wg *sync.WaitGroup) {
	ticker := time.NewTicker(bl.sweepInterval)
	defer func() {
		ticker.Stop()
		bl.logger.Debug().Msg("sweeper stopped")
		wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := bl.Sweep(); n > 0 {
				bl.logger.Debug().Int("purged", n).Msg("expired blocklist entries purged")
			}
		}
	}
}
