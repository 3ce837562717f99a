package session

import (
	"context"
	"hash/maphash"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/bookingbot/core/logger"
)

const shardCount = 32

type entry struct {
	// turn serializes work on one chat; it outlives the session so a lock taken for a
	// chat without a session still excludes concurrent turns.
	turn    sync.Mutex
	refs    int
	session *Session
}

type shard struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// Store holds sessions keyed by chat ID. Map access is guarded per shard and turns are
// serialized per chat, so unrelated chats never contend on a shared lock.
type Store struct {
	shards [shardCount]shard
	seed   maphash.Seed
	ttl    time.Duration
	now    func() time.Time
}

// Options tunes a Store.
type Options struct {
	// TTL expires sessions idle for longer. Zero disables expiry.
	TTL time.Duration
	Now func() time.Time
}

// NewStore builds an empty Store.
func NewStore(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{seed: maphash.MakeSeed(), ttl: opts.TTL, now: opts.Now}
	for i := range s.shards {
		s.shards[i].entries = make(map[int64]*entry)
	}
	return s
}

func (s *Store) shardFor(chatID int64) *shard {
	var h maphash.Hash
	h.SetSeed(s.seed)
	var b [8]byte
	for i := range b {
		b[i] = byte(chatID >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return &s.shards[h.Sum64()%shardCount]
}

// Lock serializes a conversation turn for chatID. The returned func releases it.
func (s *Store) Lock(chatID int64) (unlock func()) {
	sh := s.shardFor(chatID)
	sh.mu.Lock()
	e, ok := sh.entries[chatID]
	if !ok {
		e = &entry{}
		sh.entries[chatID] = e
	}
	e.refs++
	sh.mu.Unlock()

	e.turn.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.turn.Unlock()
			sh.mu.Lock()
			e.refs--
			if e.refs == 0 && e.session == nil {
				delete(sh.entries, chatID)
			}
			sh.mu.Unlock()
		})
	}
}

// Get returns the session of chatID if one is in progress.
func (s *Store) Get(chatID int64) (*Session, bool) {
	sh := s.shardFor(chatID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[chatID]; ok && e.session != nil {
		return e.session, true
	}
	return nil, false
}

// GetOrCreate returns the session of chatID, creating one at AwaitingServiceSelection
// when absent. created reports whether a new session was made.
func (s *Store) GetOrCreate(chatID int64) (sess *Session, created bool) {
	return s.getOrCreate(chatID, AwaitingServiceSelection)
}

// Start returns the existing session or creates one in the given initial state.
func (s *Store) Start(chatID int64, initial State) (*Session, bool) {
	return s.getOrCreate(chatID, initial)
}

func (s *Store) getOrCreate(chatID int64, initial State) (*Session, bool) {
	sh := s.shardFor(chatID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[chatID]
	if !ok {
		e = &entry{}
		sh.entries[chatID] = e
	}
	if e.session != nil {
		return e.session, false
	}
	now := s.now()
	e.session = &Session{ChatID: chatID, State: initial, StartedAt: now, UpdatedAt: now}
	return e.session, true
}

// Delete removes the session of chatID. Deleting an absent session is a no-op.
func (s *Store) Delete(chatID int64) {
	sh := s.shardFor(chatID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[chatID]
	if !ok {
		return
	}
	e.session = nil
	if e.refs == 0 {
		delete(sh.entries, chatID)
	}
}

// Len returns the number of sessions in progress.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, e := range sh.entries {
			if e.session != nil {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// Sweep deletes sessions idle for longer than the TTL and returns how many were removed.
// Sessions whose chat is mid-turn are skipped.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, e := range sh.entries {
			if e.session == nil || e.refs > 0 {
				continue
			}
			if now.Sub(e.session.UpdatedAt) > s.ttl {
				delete(sh.entries, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = max(s.ttl/4, time.Second)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				logger.Info(ctx, logger.CompSessions, "sessions.expired",
					slog.String("status", "ok"),
					slog.Int("count", n),
				)
			}
		}
	}
}
