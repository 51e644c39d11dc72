package models

import (
	"path/filepath"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/imagerestore/device"
	"github.com/moyoez/imagerestore/transfer"
	"github.com/moyoez/imagerestore/types"
)

// DefaultSessionTTL is how long a finished session stays queryable.
var DefaultSessionTTL = 10 * time.Minute

var (
	sessionMu sync.RWMutex
	// running sessions, keyed by id
	activeSessions = map[string]*transfer.SessionHandle{}
	// target locator -> session id, one restore per device
	activeTargets    = map[string]string{}
	finishedSessions = ttlworker.NewCache[string, types.SessionSnapshot](DefaultSessionTTL)
)

// SetSessionTTL replaces the finished-session cache. Sessions already
// finished are dropped, so call it before serving.
func SetSessionTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	sessionMu.Lock()
	defer sessionMu.Unlock()
	finishedSessions = ttlworker.NewCache[string, types.SessionSnapshot](ttl)
}

// canonicalTarget resolves a locator to the path the device provider opens,
// so "sdb", "/dev/sdb" and "/dev/../dev/sdb" share one claim.
func canonicalTarget(target string) string {
	path := device.EnsureDevPrefix(target)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// ClaimTarget reserves target for a new session. It fails when another
// session is still writing to it.
func ClaimTarget(target string) (string, bool) {
	target = canonicalTarget(target)
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if id, busy := activeTargets[target]; busy {
		return id, false
	}
	activeTargets[target] = ""
	return "", true
}

// ReleaseTarget drops a claim that never turned into a session.
func ReleaseTarget(target string) {
	target = canonicalTarget(target)
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if activeTargets[target] == "" {
		delete(activeTargets, target)
	}
}

// TrackSession registers a running session and moves it to the finished cache
// once its worker is done.
func TrackSession(target string, h *transfer.SessionHandle) {
	target = canonicalTarget(target)
	sessionMu.Lock()
	activeSessions[h.Id()] = h
	activeTargets[target] = h.Id()
	sessionMu.Unlock()

	go func() {
		<-h.Done()
		snap := h.Snapshot()
		sessionMu.Lock()
		defer sessionMu.Unlock()
		delete(activeSessions, h.Id())
		if activeTargets[target] == h.Id() {
			delete(activeTargets, target)
		}
		finishedSessions.Set(h.Id(), snap)
	}()
}

// GetActiveSession returns the handle of a running session.
func GetActiveSession(sessionId string) (*transfer.SessionHandle, bool) {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	h, ok := activeSessions[sessionId]
	return h, ok
}

// LookupSession returns the snapshot of a running or recently finished session.
func LookupSession(sessionId string) (types.SessionSnapshot, bool) {
	sessionMu.RLock()
	h, ok := activeSessions[sessionId]
	cache := finishedSessions
	sessionMu.RUnlock()
	if ok {
		return h.Snapshot(), true
	}
	snap := cache.Get(sessionId)
	return snap, snap.SessionId != ""
}

// ListSessions returns every running session and every finished one still cached.
func ListSessions() []types.SessionSnapshot {
	sessionMu.RLock()
	out := make([]types.SessionSnapshot, 0, len(activeSessions))
	for _, h := range activeSessions {
		out = append(out, h.Snapshot())
	}
	cache := finishedSessions
	sessionMu.RUnlock()

	_ = cache.Range(func(_ string, snap types.SessionSnapshot) error {
		out = append(out, snap)
		return nil
	})
	return out
}

// CancelAllSessions cancels every running session, used on shutdown.
func CancelAllSessions() []*transfer.SessionHandle {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	handles := make([]*transfer.SessionHandle, 0, len(activeSessions))
	for _, h := range activeSessions {
		h.Cancel()
		handles = append(handles, h)
	}
	return handles
}
