// Package main implements a mock agent binary used to exercise both
// Executor Adapter shapes (internal/executor) without a real coding-agent
// CLI installed: invoked directly it behaves like the Direct-CLI shape
// (cliexec.go), and invoked as "mockagent serve ..." it behaves like the
// Daemon-plus-client shape (daemonclient.go), speaking the minimal
// JSON-lines protocol defined in internal/executor/protocol.go.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		runServe(os.Args[2:])
		return
	}
	runDirect(os.Args[1:])
}

// runDirect mimics "<binary> --print --dangerously-skip-permissions
// [--model M] [--resume ID] <prompt>": it writes a couple of lines to
// stdout, honors a few magic prompt substrings for testing error paths and
// slow starts, and exits.
func runDirect(args []string) {
	fs := flag.NewFlagSet("mockagent", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	model := fs.String("model", "", "")
	resume := fs.String("resume", "", "")
	_ = fs.Bool("print", false, "")
	_ = fs.Bool("dangerously-skip-permissions", false, "")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	prompt := strings.Join(fs.Args(), " ")

	switch {
	case strings.Contains(prompt, "mockagent:fail"):
		fmt.Fprintln(os.Stderr, "mock-agent: simulated failure")
		os.Exit(1)
	case strings.Contains(prompt, "mockagent:hang"):
		select {}
	}

	if *resume != "" {
		fmt.Fprintf(os.Stdout, "resuming %s\n", *resume)
	}
	if *model != "" {
		fmt.Fprintf(os.Stdout, "using model %s\n", *model)
	}
	fmt.Fprintf(os.Stdout, "echo: %s\n", prompt)
	fmt.Fprintln(os.Stdout, "done")
}

// runServe mimics the Daemon-plus-client shape: print "listening on
// <addr>" on the first stdout line the way daemonclient.go's
// scanForListening expects, then accept connections and speak the
// wireRequest/wireResponse protocol from internal/executor/protocol.go.
func runServe(args []string) {
	fs := flag.NewFlagSet("mockagent-serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	hostname := fs.String("hostname", "127.0.0.1", "")
	port := fs.String("port", "0", "")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(*hostname, *port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock-agent: listen: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()

	fmt.Fprintf(os.Stdout, "listening on %s\n", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go handleConn(conn)
	}
}

type wireRequest struct {
	Type      string `json:"type"`
	Prompt    string `json:"prompt,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

type wireResponse struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ExitCode  int    `json:"exit_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleConn drives exactly one prompt turn per protocolClient.runTurn's
// expectations: one "prompt" request in, a few "output" lines, then "done"
// (or "error", or nothing further if a "cancel" arrives first).
func handleConn(conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	var req wireRequest
	if err := dec.Decode(&req); err != nil {
		return
	}
	if req.Type != "prompt" {
		_ = enc.Encode(wireResponse{Type: "error", Error: "expected prompt request"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("mock-%d", time.Now().UnixNano())
	}

	cancelCh := make(chan struct{}, 1)
	go func() {
		var cancelReq wireRequest
		if dec.Decode(&cancelReq) == nil && cancelReq.Type == "cancel" {
			cancelCh <- struct{}{}
		}
	}()

	if strings.Contains(req.Prompt, "mockagent:fail") {
		_ = enc.Encode(wireResponse{Type: "error", SessionID: sessionID, Error: "simulated failure"})
		return
	}

	lines := []string{fmt.Sprintf("echo: %s", req.Prompt), "done thinking"}
	for _, line := range lines {
		select {
		case <-cancelCh:
			return
		case <-time.After(10 * time.Millisecond):
		}
		if err := enc.Encode(wireResponse{Type: "output", SessionID: sessionID, Text: line}); err != nil {
			return
		}
	}

	_ = enc.Encode(wireResponse{Type: "done", SessionID: sessionID, ExitCode: 0})
}
