package executor

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startFakeControlServer runs a minimal JSON-lines server: it reads one
// "prompt" request, streams back two "output" lines, then "done".
func startFakeControlServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		scanner := bufio.NewScanner(conn)
		if !scanner.Scan() {
			return
		}
		var req wireRequest
		_ = json.Unmarshal(scanner.Bytes(), &req)

		enc := json.NewEncoder(conn)
		_ = enc.Encode(wireResponse{Type: "output", Text: "line one"})
		_ = enc.Encode(wireResponse{Type: "output", Text: "line two"})
		_ = enc.Encode(wireResponse{Type: "done", ExitCode: 0, SessionID: req.SessionID})
	}()

	return ln.Addr().String()
}

func TestProtocolClient_RunTurn(t *testing.T) {
	addr := startFakeControlServer(t)
	client := newProtocolClient(addr)

	var lines []string
	exitCode, err := client.runTurn("do the thing", "", "", func(line string) {
		lines = append(lines, line)
	}, make(chan struct{}))

	require.NoError(t, err)
	require.Equal(t, 0, exitCode)
	require.Equal(t, []string{"line one", "line two"}, lines)
}

func TestProtocolClient_RunTurn_DialFailure(t *testing.T) {
	client := newProtocolClient("127.0.0.1:1")
	_, err := client.runTurn("prompt", "", "", func(string) {}, make(chan struct{}))
	require.Error(t, err)
}

func TestProtocolClient_RunTurn_ReturnsOnConnectionClose(t *testing.T) {
	// Regression guard: runTurn must return once the server closes the
	// connection without ever sending "done".
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		time.Sleep(50 * time.Millisecond)
		_ = conn.Close()
	}()

	client := newProtocolClient(ln.Addr().String())
	done := make(chan struct{})
	go func() {
		_, _ = client.runTurn("prompt", "", "", func(string) {}, make(chan struct{}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runTurn did not return after the connection closed")
	}
}
