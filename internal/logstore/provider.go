package logstore

// Provide constructs a fresh Store. The log store is purely in-memory: its
// durable ring buffers back replay-on-subscribe within a process lifetime,
// not across restarts, so unlike the worktree and session stores it takes
// no database handle.
func Provide() *Store {
	return NewStore()
}
