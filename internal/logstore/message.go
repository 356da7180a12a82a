package logstore

import "encoding/json"

// Message is the tagged union pushed over a session's subscription feed.
// Each concrete type supplies the "type" discriminator via Kind, and a
// MarshalJSON that flattens itself to {"type": ..., ...fields}.
type Message interface {
	Kind() string
}

type StdoutMsg struct {
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

func (StdoutMsg) Kind() string { return "stdout" }

func (m StdoutMsg) MarshalJSON() ([]byte, error) {
	type alias StdoutMsg
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: m.Kind(), alias: alias(m)})
}

type StderrMsg struct {
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

func (StderrMsg) Kind() string { return "stderr" }

func (m StderrMsg) MarshalJSON() ([]byte, error) {
	type alias StderrMsg
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: m.Kind(), alias: alias(m)})
}

// EventMsg carries a supervisor-generated lifecycle note (e.g. "pump crashed: ...").
type EventMsg struct {
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

func (EventMsg) Kind() string { return "event" }

func (m EventMsg) MarshalJSON() ([]byte, error) {
	type alias EventMsg
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: m.Kind(), alias: alias(m)})
}

// SessionIDMsg is sent once, immediately after subscribe, so a consumer
// that did not already know the session id can correlate the feed.
type SessionIDMsg struct {
	SessionID string `json:"session_id"`
}

func (SessionIDMsg) Kind() string { return "session_id" }

func (m SessionIDMsg) MarshalJSON() ([]byte, error) {
	type alias SessionIDMsg
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: m.Kind(), alias: alias(m)})
}

// FinishedMsg is the terminal message on a session's feed; no further
// messages follow it.
type FinishedMsg struct {
	Status string `json:"status"`
}

func (FinishedMsg) Kind() string { return "finished" }

func (m FinishedMsg) MarshalJSON() ([]byte, error) {
	type alias FinishedMsg
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: m.Kind(), alias: alias(m)})
}

// LaggedMsg tells a subscriber it missed n messages because its channel
// was full; it precedes the next message that successfully sends.
type LaggedMsg struct {
	Skipped uint64 `json:"skipped"`
}

func (LaggedMsg) Kind() string { return "lagged" }

func (m LaggedMsg) MarshalJSON() ([]byte, error) {
	type alias LaggedMsg
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: m.Kind(), alias: alias(m)})
}
