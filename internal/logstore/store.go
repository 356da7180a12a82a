// Package logstore is the Log Store component: a per-session durable ring
// buffer plus live broadcast fan-out, adapted from the teacher's WebSocket
// hub (register/unregister/broadcast over non-blocking per-subscriber
// channels) but keyed per session instead of per task, and surviving a slow
// subscriber with a Lagged notification instead of disconnecting it.
package logstore

import (
	"sync"
)

const (
	stdoutRingSize  = 10_000
	stderrRingSize  = 1_000
	subscriberDepth = 1024
)

// Subscription is a live feed of Messages for one session.
type Subscription struct {
	ch     chan Message
	cancel func()
}

// C returns the channel to receive messages on. It is closed when the
// subscription is cancelled.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Close cancels the subscription, releasing its buffered channel.
func (s *Subscription) Close() {
	s.cancel()
}

type subscriber struct {
	ch     chan Message
	lagged uint64
}

type sessionLog struct {
	mu          sync.Mutex
	stdout      []StdoutMsg
	stderr      []StderrMsg
	nextSeq     uint64
	subscribers map[*subscriber]struct{}
}

func newSessionLog() *sessionLog {
	return &sessionLog{subscribers: make(map[*subscriber]struct{})}
}

// Store holds one sessionLog per session id.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionLog)}
}

func (s *Store) get(sessionID string) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.sessions[sessionID]
	if !ok {
		sl = newSessionLog()
		s.sessions[sessionID] = sl
	}
	return sl
}

// PushStdout appends a stdout line to the session's durable ring buffer and
// broadcasts it to live subscribers.
func (s *Store) PushStdout(sessionID, text string) {
	sl := s.get(sessionID)
	sl.mu.Lock()
	seq := sl.nextSeq
	sl.nextSeq++
	msg := StdoutMsg{Seq: seq, Text: text}
	sl.stdout = append(sl.stdout, msg)
	if len(sl.stdout) > stdoutRingSize {
		sl.stdout = sl.stdout[len(sl.stdout)-stdoutRingSize:]
	}
	s.broadcastLocked(sl, msg)
	sl.mu.Unlock()
}

// PushStderr is PushStdout for the stderr ring.
func (s *Store) PushStderr(sessionID, text string) {
	sl := s.get(sessionID)
	sl.mu.Lock()
	seq := sl.nextSeq
	sl.nextSeq++
	msg := StderrMsg{Seq: seq, Text: text}
	sl.stderr = append(sl.stderr, msg)
	if len(sl.stderr) > stderrRingSize {
		sl.stderr = sl.stderr[len(sl.stderr)-stderrRingSize:]
	}
	s.broadcastLocked(sl, msg)
	sl.mu.Unlock()
}

// PushEvent broadcasts a supervisor-generated event line. Events are not
// retained in a durable ring; they are transient lifecycle notes.
func (s *Store) PushEvent(sessionID, text string) {
	sl := s.get(sessionID)
	sl.mu.Lock()
	seq := sl.nextSeq
	sl.nextSeq++
	s.broadcastLocked(sl, EventMsg{Seq: seq, Text: text})
	sl.mu.Unlock()
}

// PushFinished broadcasts the terminal message for the session's feed.
func (s *Store) PushFinished(sessionID, status string) {
	sl := s.get(sessionID)
	sl.mu.Lock()
	s.broadcastLocked(sl, FinishedMsg{Status: status})
	sl.mu.Unlock()
}

// broadcastLocked sends msg to every live subscriber without blocking. A
// subscriber whose channel is full is not dropped — its lag counter is
// incremented and a LaggedMsg precedes the next message it does receive.
func (s *Store) broadcastLocked(sl *sessionLog, msg Message) {
	for sub := range sl.subscribers {
		if sub.lagged > 0 {
			select {
			case sub.ch <- LaggedMsg{Skipped: sub.lagged}:
				sub.lagged = 0
			default:
				sub.lagged++
				continue
			}
		}
		select {
		case sub.ch <- msg:
		default:
			sub.lagged++
		}
	}
}

// All returns every retained stdout and stderr message for a session, in
// the order pushed, suitable for replaying history to a new subscriber.
func (s *Store) All(sessionID string) ([]StdoutMsg, []StderrMsg) {
	sl := s.get(sessionID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	out := make([]StdoutMsg, len(sl.stdout))
	copy(out, sl.stdout)
	errOut := make([]StderrMsg, len(sl.stderr))
	copy(errOut, sl.stderr)
	return out, errOut
}

// Recent returns up to the last k stdout messages.
func (s *Store) Recent(sessionID string, k int) []StdoutMsg {
	sl := s.get(sessionID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if k <= 0 || k > len(sl.stdout) {
		k = len(sl.stdout)
	}
	out := make([]StdoutMsg, k)
	copy(out, sl.stdout[len(sl.stdout)-k:])
	return out
}

// Subscribe registers a live feed for sessionID. An immediate SessionIDMsg
// is sent first so a consumer that doesn't already know the id can
// correlate the feed.
func (s *Store) Subscribe(sessionID string) *Subscription {
	sl := s.get(sessionID)
	sub := &subscriber{ch: make(chan Message, subscriberDepth)}
	sub.ch <- SessionIDMsg{SessionID: sessionID}

	sl.mu.Lock()
	sl.subscribers[sub] = struct{}{}
	sl.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sl.mu.Lock()
			delete(sl.subscribers, sub)
			close(sub.ch)
			sl.mu.Unlock()
		})
	}

	return &Subscription{ch: sub.ch, cancel: cancel}
}

// Clear discards the buffered stdout/stderr history for a session. It does
// not affect live subscribers or their channels — a subscriber may outlive
// the session that produced its feed, and still has a live registration to
// unregister via Subscription.Close when it's done. The sessionLog itself
// stays in the Store; neither Clear nor Subscription.Close removes it.
func (s *Store) Clear(sessionID string) {
	sl := s.get(sessionID)
	sl.mu.Lock()
	sl.stdout = nil
	sl.stderr = nil
	sl.mu.Unlock()
}
