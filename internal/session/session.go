// Package session implements the stdio JSON-RPC session to the child MCP
// server: handshake, request id sequencing, single-flight call correlation,
// and connection state tracking.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/mcp-bridge/internal/config"
	"github.com/gaspardpetit/mcp-bridge/internal/jsonrpc"
	"github.com/gaspardpetit/mcp-bridge/internal/logx"
	"github.com/gaspardpetit/mcp-bridge/internal/metrics"
)

// ProtocolVersion is the MCP revision offered in the handshake.
const ProtocolVersion = "2024-11-05"

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrSpawn reports that the child process could not be started.
	ErrSpawn = errors.New("spawn failed")
	// ErrHandshake reports a failed initialize exchange; the session stays
	// disconnected and Connect may be retried.
	ErrHandshake = errors.New("handshake failed")
	// ErrTransport reports a broken stream: write/read failure, child exit,
	// a malformed line, or a response that does not match the pending call.
	// The session drops to disconnected and must be reconnected explicitly.
	ErrTransport = errors.New("transport failed")
	// ErrTimeout reports that the child did not answer within the configured
	// window. The stream is no longer trustworthy, so the session also drops
	// to disconnected.
	ErrTimeout = errors.New("request timed out")
	// ErrNotConnected is returned by Call when the session is not ready.
	ErrNotConnected = errors.New("session not connected")
)

// RemoteError is an application-level error returned by the child server.
// It does not break the session.
type RemoteError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Transport is the process-level I/O the session drives. *proc.Supervisor
// implements it; tests substitute an in-memory fake.
type Transport interface {
	Start(command string, args []string) error
	WriteLine(b []byte) error
	ReadLine() ([]byte, error)
	Terminate()
	Pid() int
}

// Session manages exactly one logical session to one child server.
//
// Calls are single-flight: callMu serializes Connect and Call, so a second
// Call issued while one is outstanding blocks until the first completes and
// requests complete in strict FIFO order. Disconnect intentionally does not
// take callMu so it can interrupt a blocked call.
type Session struct {
	tr            Transport
	server        config.ServerEntry
	clientName    string
	clientVersion string
	timeout       time.Duration
	log           zerolog.Logger

	callMu sync.Mutex
	nextID int64 // guarded by callMu

	stateMu sync.Mutex
	state   State
}

// New builds a session for the given server. timeout bounds each call
// including the handshake; zero disables the bound.
func New(tr Transport, server config.ServerEntry, clientName, clientVersion string, timeout time.Duration) *Session {
	return &Session{
		tr:            tr,
		server:        server,
		clientName:    clientName,
		clientVersion: clientVersion,
		timeout:       timeout,
		log:           logx.Log.With().Str("component", "session").Str("server", server.Name).Logger(),
	}
}

// State returns the current lifecycle state. It never blocks behind an
// in-flight call.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Pid returns the child process id, or 0 when none is running.
func (s *Session) Pid() int { return s.tr.Pid() }

// ServerName returns the configured name of the launched server.
func (s *Session) ServerName() string { return s.server.Name }

type initializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ClientInfo      clientInfo   `json:"clientInfo"`
}

type capabilities struct {
	Roots    rootsCapability `json:"roots"`
	Sampling struct{}        `json:"sampling"`
}

type rootsCapability struct {
	ListChanged bool `json:"listChanged"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Connect spawns the child and performs the initialize handshake. It resets a
// disconnected or closed session; calling it on a ready session is a no-op.
// On failure the session is left disconnected and Connect may be retried.
func (s *Session) Connect(ctx context.Context) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	if s.State() == StateReady {
		return nil
	}
	s.setState(StateConnecting)
	if err := s.tr.Start(s.server.Command, s.server.Args); err != nil {
		s.setState(StateDisconnected)
		metrics.RecordConnect("spawn_error")
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	s.nextID = 0
	req, err := jsonrpc.NewRequest(jsonrpc.NewID(s.next()), "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    capabilities{Roots: rootsCapability{ListChanged: true}},
		ClientInfo:      clientInfo{Name: s.clientName, Version: s.clientVersion},
	})
	if err != nil {
		s.fail(err)
		metrics.RecordConnect("error")
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	result, err := s.roundTrip(ctx, req)
	if err != nil {
		var re *RemoteError
		if errors.As(err, &re) {
			// An error response to initialize is fatal for the attempt even
			// though the transport itself still works.
			s.fail(re)
		}
		metrics.RecordConnect("error")
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := s.notify("notifications/initialized", nil); err != nil {
		s.fail(err)
		metrics.RecordConnect("error")
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	s.setState(StateReady)
	metrics.RecordConnect("success")
	s.log.Info().Int("pid", s.tr.Pid()).RawJSON("result", compactOrNull(result)).Msg("connected")
	return nil
}

// Call sends one request and blocks until its response arrives. Results pass
// through as raw JSON. A *RemoteError leaves the session ready; transport
// failures and timeouts drop it to disconnected.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	if st := s.State(); st != StateReady {
		return nil, fmt.Errorf("%w: state is %s", ErrNotConnected, st)
	}
	req, err := jsonrpc.NewRequest(jsonrpc.NewID(s.next()), method, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := s.roundTrip(ctx, req)
	metrics.RecordCall(method, callOutcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("method", method).Stringer("id", req.ID).Dur("duration", time.Since(start)).Msg("call completed")
	return result, nil
}

// Disconnect terminates the child and moves the session to closed. It is safe
// to call at any time, including while a call is blocked waiting for a
// response: terminating the child closes its pipes, which unblocks the call
// with ErrTransport. Idempotent.
func (s *Session) Disconnect() {
	s.stateMu.Lock()
	if s.state == StateClosed {
		s.stateMu.Unlock()
		return
	}
	s.state = StateClosed
	metrics.SetSessionState(int(StateClosed))
	s.stateMu.Unlock()
	s.tr.Terminate()
	s.log.Info().Msg("session closed")
}

// roundTrip writes req and waits for the response carrying the same id. The
// caller must hold callMu.
func (s *Session) roundTrip(ctx context.Context, req *jsonrpc.Message) (json.RawMessage, error) {
	line, err := jsonrpc.EncodeLine(req)
	if err != nil {
		return nil, err
	}
	if err := s.tr.WriteLine(line); err != nil {
		s.fail(err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	type readResult struct {
		msg *jsonrpc.Message
		err error
	}
	ch := make(chan readResult, 1)
	go func() {
		for {
			raw, err := s.tr.ReadLine()
			if err != nil {
				ch <- readResult{err: err}
				return
			}
			msg, err := jsonrpc.DecodeLine(raw)
			if err != nil {
				ch <- readResult{err: err}
				return
			}
			if msg.Kind() == jsonrpc.KindNotification {
				s.log.Debug().Str("method", msg.Method).Msg("notification from child ignored")
				continue
			}
			ch <- readResult{msg: msg}
			return
		}
	}()

	var timeoutC <-chan time.Time
	if s.timeout > 0 {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		timeoutC = t.C
	}
	select {
	case r := <-ch:
		if r.err != nil {
			s.fail(r.err)
			if errors.Is(r.err, io.EOF) {
				return nil, fmt.Errorf("%w: child closed its output stream", ErrTransport)
			}
			return nil, fmt.Errorf("%w: %v", ErrTransport, r.err)
		}
		msg := r.msg
		if msg.Kind() != jsonrpc.KindResponse {
			err := fmt.Errorf("%w: unexpected %s %q from child", ErrTransport, msg.Kind(), msg.Method)
			s.fail(err)
			return nil, err
		}
		if !msg.ID.Equal(req.ID) {
			err := fmt.Errorf("%w: response id %s does not match request id %s", ErrTransport, msg.ID, req.ID)
			s.fail(err)
			return nil, err
		}
		if msg.Error != nil {
			return nil, &RemoteError{Code: msg.Error.Code, Message: msg.Error.Message, Data: msg.Error.Data}
		}
		return msg.Result, nil
	case <-timeoutC:
		s.fail(ErrTimeout)
		return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, s.timeout, req.Method)
	case <-ctx.Done():
		s.fail(ctx.Err())
		return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	}
	// The reader goroutine, if still blocked, exits once fail's Terminate
	// closes the child pipes; ch is buffered so its send never sticks.
}

// notify writes a notification without waiting for any reply.
func (s *Session) notify(method string, params any) error {
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	line, err := jsonrpc.EncodeLine(n)
	if err != nil {
		return err
	}
	return s.tr.WriteLine(line)
}

// next allocates the next request id. Ids are monotonic for the life of one
// connection; the handshake takes 1, the first call 2.
func (s *Session) next() int64 {
	s.nextID++
	return s.nextID
}

// fail tears down the transport after an unrecoverable error. A session that
// was already closed by Disconnect stays closed.
func (s *Session) fail(cause error) {
	s.stateMu.Lock()
	if s.state == StateReady || s.state == StateConnecting {
		s.state = StateDisconnected
		metrics.SetSessionState(int(StateDisconnected))
	}
	s.stateMu.Unlock()
	s.tr.Terminate()
	s.log.Warn().Err(cause).Msg("session failed")
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
	metrics.SetSessionState(int(st))
}

func callOutcome(err error) string {
	var re *RemoteError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &re):
		return "remote_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transport_error"
	}
}

func compactOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
