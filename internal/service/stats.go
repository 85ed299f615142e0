// Package service contains the engine services: lifecycle, reconciliation,
// expiry sweep, emergency access, device registry, and the engine facade.
package service

import "sync/atomic"

// Stats tracks runtime counters using lock-free atomics. All operations are
// safe for concurrent use from the API surface, timer loops, and the
// subscription consumer.
type Stats struct {
	sessionsCreated atomic.Int64
	sessionsRevoked atomic.Int64
	sessionsSwept   atomic.Int64
	eventsLogged    atomic.Int64

	pulls         atomic.Int64
	pullFailures  atomic.Int64
	pushes        atomic.Int64
	pushFailures  atomic.Int64
	notifications atomic.Int64
	echoesSkipped atomic.Int64
	merges        atomic.Int64
}

// NewStats creates a Stats with all counters at zero.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) RecordCreated()      { s.sessionsCreated.Add(1) }
func (s *Stats) RecordRevoked()      { s.sessionsRevoked.Add(1) }
func (s *Stats) RecordSwept(n int)   { s.sessionsSwept.Add(int64(n)) }
func (s *Stats) RecordEvent()        { s.eventsLogged.Add(1) }
func (s *Stats) RecordPull()         { s.pulls.Add(1) }
func (s *Stats) RecordPullFailure()  { s.pullFailures.Add(1) }
func (s *Stats) RecordPush()         { s.pushes.Add(1) }
func (s *Stats) RecordPushFailure()  { s.pushFailures.Add(1) }
func (s *Stats) RecordNotification() { s.notifications.Add(1) }
func (s *Stats) RecordEchoSkipped()  { s.echoesSkipped.Add(1) }
func (s *Stats) RecordMerge()        { s.merges.Add(1) }

// SyncStats is a point-in-time snapshot of engine state and counters.
// Per-counter consistent, not atomic across counters.
type SyncStats struct {
	ActiveSessions int   `json:"active_sessions"`
	TrackedDevices int   `json:"tracked_devices"`
	PendingPushes  int   `json:"pending_pushes"`
	Created        int64 `json:"sessions_created"`
	Revoked        int64 `json:"sessions_revoked"`
	Swept          int64 `json:"sessions_swept"`
	EventsLogged   int64 `json:"events_logged"`
	Pulls          int64 `json:"reconcile_pulls"`
	PullFailures   int64 `json:"reconcile_pull_failures"`
	Pushes         int64 `json:"reconcile_pushes"`
	PushFailures   int64 `json:"reconcile_push_failures"`
	Notifications  int64 `json:"notifications_applied"`
	EchoesSkipped  int64 `json:"notification_echoes_skipped"`
	Merges         int64 `json:"remote_merges_adopted"`
}

// snapshot fills the counter fields. The caller supplies the gauge fields.
func (s *Stats) snapshot() SyncStats {
	return SyncStats{
		Created:       s.sessionsCreated.Load(),
		Revoked:       s.sessionsRevoked.Load(),
		Swept:         s.sessionsSwept.Load(),
		EventsLogged:  s.eventsLogged.Load(),
		Pulls:         s.pulls.Load(),
		PullFailures:  s.pullFailures.Load(),
		Pushes:        s.pushes.Load(),
		PushFailures:  s.pushFailures.Load(),
		Notifications: s.notifications.Load(),
		EchoesSkipped: s.echoesSkipped.Load(),
		Merges:        s.merges.Load(),
	}
}
