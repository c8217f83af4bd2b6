package notifications

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"giftdesk/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	defaultOnlineAdminsKey = "ws:online_admins"
	defaultLastSeenPrefix  = "ws:admin_last_seen:"
	defaultLastSeenTTL     = 90 * time.Second
	defaultOfflineGrace    = 5 * time.Second
	defaultReaperInterval  = 60 * time.Second
)

// PresenceConfig controls Redis presence and cleanup behavior.
type PresenceConfig struct {
	OnlineSetKey       string
	LastSeenKeyPrefix  string
	LastSeenTTL        time.Duration
	OfflineGracePeriod time.Duration
	ReaperInterval     time.Duration
	OnOnline           func(adminID uint)
	OnOffline          func(adminID uint)
}

// Presence counts live admin sessions on this instance, mirrors them into
// Redis so every instance can answer who is online, and reports offline
// transitions after a grace window that absorbs quick reconnects.
type Presence struct {
	rdb *redis.Client

	mu            sync.RWMutex
	localCounts   map[uint]int
	offlineTimers map[uint]*time.Timer
	offlineSent   map[uint]bool

	onlineSetKey   string
	lastSeenPrefix string
	lastSeenTTL    time.Duration
	offlineGrace   time.Duration

	onOnline  func(adminID uint)
	onOffline func(adminID uint)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPresence creates a tracker and starts the Redis reaper when Redis is available.
func NewPresence(rdb *redis.Client, cfg PresenceConfig) *Presence {
	p := &Presence{
		rdb:            rdb,
		localCounts:    make(map[uint]int),
		offlineTimers:  make(map[uint]*time.Timer),
		offlineSent:    make(map[uint]bool),
		onlineSetKey:   defaultOnlineAdminsKey,
		lastSeenPrefix: defaultLastSeenPrefix,
		lastSeenTTL:    defaultLastSeenTTL,
		offlineGrace:   defaultOfflineGrace,
		onOnline:       cfg.OnOnline,
		onOffline:      cfg.OnOffline,
		stopCh:         make(chan struct{}),
	}
	if cfg.OnlineSetKey != "" {
		p.onlineSetKey = cfg.OnlineSetKey
	}
	if cfg.LastSeenKeyPrefix != "" {
		p.lastSeenPrefix = cfg.LastSeenKeyPrefix
	}
	if cfg.LastSeenTTL > 0 {
		p.lastSeenTTL = cfg.LastSeenTTL
	}
	if cfg.OfflineGracePeriod > 0 {
		p.offlineGrace = cfg.OfflineGracePeriod
	}

	interval := defaultReaperInterval
	if cfg.ReaperInterval > 0 {
		interval = cfg.ReaperInterval
	}
	if p.rdb != nil {
		go p.reaperLoop(interval)
	}
	return p
}

// Stop ends the reaper and pending offline timers.
func (p *Presence) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.mu.Lock()
		for id, timer := range p.offlineTimers {
			timer.Stop()
			delete(p.offlineTimers, id)
		}
		p.mu.Unlock()
	})
}

// Register records a new session for adminID.
func (p *Presence) Register(ctx context.Context, adminID uint) {
	wasOnline := p.IsOnline(ctx, adminID)

	p.mu.Lock()
	if t, ok := p.offlineTimers[adminID]; ok {
		t.Stop()
		delete(p.offlineTimers, adminID)
	}
	p.localCounts[adminID]++
	p.offlineSent[adminID] = false
	cb := p.onOnline
	p.mu.Unlock()

	p.Touch(ctx, adminID)
	if !wasOnline && cb != nil {
		cb(adminID)
	}
}

// Touch refreshes the Redis last-seen marker for adminID.
func (p *Presence) Touch(ctx context.Context, adminID uint) {
	if p.rdb == nil {
		return
	}
	pipe := p.rdb.TxPipeline()
	pipe.SAdd(ctx, p.onlineSetKey, formatID(adminID))
	pipe.SetEx(ctx, p.lastSeenKey(adminID), strconv.FormatInt(time.Now().Unix(), 10), p.lastSeenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		middleware.Logger.Warn("presence touch failed",
			slog.Uint64("admin_id", uint64(adminID)), slog.String("error", err.Error()))
	}
}

// Unregister drops one session; the admin goes offline after the grace
// window unless another session registers first.
func (p *Presence) Unregister(_ context.Context, adminID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := p.localCounts[adminID]; n > 1 {
		p.localCounts[adminID] = n - 1
		return
	}
	delete(p.localCounts, adminID)

	if t, ok := p.offlineTimers[adminID]; ok {
		t.Stop()
	}
	p.offlineTimers[adminID] = time.AfterFunc(p.offlineGrace, func() {
		p.finalizeOffline(context.Background(), adminID)
	})
}

// IsOnline reports whether adminID has a session here or a fresh marker in Redis.
func (p *Presence) IsOnline(ctx context.Context, adminID uint) bool {
	p.mu.RLock()
	local := p.localCounts[adminID] > 0
	p.mu.RUnlock()
	if local || p.rdb == nil {
		return local
	}

	exists, err := p.rdb.Exists(ctx, p.lastSeenKey(adminID)).Result()
	return err == nil && exists > 0
}

// OnlineAdminIDs returns online admins across instances, unioned with local
// sessions, in ascending order.
func (p *Presence) OnlineAdminIDs(ctx context.Context) []uint {
	seen := make(map[uint]struct{})
	for _, id := range p.localIDs() {
		seen[id] = struct{}{}
	}

	if p.rdb != nil {
		if members, err := p.rdb.SMembers(ctx, p.onlineSetKey).Result(); err == nil {
			for _, raw := range members {
				id, ok := parseID(raw)
				if !ok {
					continue
				}
				exists, err := p.rdb.Exists(ctx, p.lastSeenKey(id)).Result()
				if err != nil {
					continue
				}
				if exists == 0 {
					_ = p.rdb.SRem(ctx, p.onlineSetKey, raw).Err()
					continue
				}
				seen[id] = struct{}{}
			}
		}
	}

	ids := make([]uint, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// reapOnce removes online-set members whose last-seen marker expired.
func (p *Presence) reapOnce(ctx context.Context) {
	members, err := p.rdb.SMembers(ctx, p.onlineSetKey).Result()
	if err != nil {
		return
	}
	for _, raw := range members {
		id, ok := parseID(raw)
		if !ok {
			continue
		}
		exists, err := p.rdb.Exists(ctx, p.lastSeenKey(id)).Result()
		if err != nil || exists > 0 {
			continue
		}
		_ = p.rdb.SRem(ctx, p.onlineSetKey, raw).Err()

		p.mu.RLock()
		hasLocal := p.localCounts[id] > 0
		p.mu.RUnlock()
		if !hasLocal {
			p.emitOffline(id)
		}
	}
}

func (p *Presence) reaperLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapOnce(context.Background())
		}
	}
}

func (p *Presence) finalizeOffline(ctx context.Context, adminID uint) {
	p.mu.Lock()
	delete(p.offlineTimers, adminID)
	if p.localCounts[adminID] > 0 {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if p.rdb != nil {
		exists, err := p.rdb.Exists(ctx, p.lastSeenKey(adminID)).Result()
		if err == nil && exists > 0 {
			// Another instance refreshed the marker.
			return
		}
		_ = p.rdb.SRem(ctx, p.onlineSetKey, formatID(adminID)).Err()
	}
	p.emitOffline(adminID)
}

func (p *Presence) emitOffline(adminID uint) {
	p.mu.Lock()
	if p.offlineSent[adminID] {
		p.mu.Unlock()
		return
	}
	p.offlineSent[adminID] = true
	cb := p.onOffline
	p.mu.Unlock()
	if cb != nil {
		cb(adminID)
	}
}

func (p *Presence) localIDs() []uint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]uint, 0, len(p.localCounts))
	for id, n := range p.localCounts {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func (p *Presence) lastSeenKey(adminID uint) string {
	return p.lastSeenPrefix + formatID(adminID)
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
