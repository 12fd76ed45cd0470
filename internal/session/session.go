// Package session implements the workspace session (§4C) and the RPC
// correlation layer on top of it (§4D): a reader task that classifies each
// line from the child's stdout, a mutex-serialised writer, a pending-request
// table keyed by a daemon-assigned id, and a background-prompt channel map
// used by the helper in internal/ops.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/workspace/codexmonitord/internal/child"
	"github.com/workspace/codexmonitord/internal/eventbus"
)

// ErrChildExited is returned to every in-flight SendRequest caller, and to
// any later caller, once the reader task observes EOF on the child's
// stdout.
var ErrChildExited = errors.New("child_exited")

// wireMessage is the shape of one line on the child's stdio protocol, wide
// enough to cover requests, responses, and notifications.
type wireMessage struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type waiter struct {
	method string
	resCh  chan waiterResult
}

type waiterResult struct {
	result json.RawMessage
	err    error
}

// Session is a long-lived, in-memory object bundling one child process with
// its reader, writer, pending-request table, background-prompt map, and
// registration table. There is exactly one Session per connected workspace.
type Session struct {
	workspaceID string
	proc        *child.Process
	bus         *eventbus.Bus
	log         *slog.Logger

	writeMu sync.Mutex

	nextID    uint64
	pendingMu sync.Mutex
	pending   map[uint64]*waiter

	bgMu       sync.Mutex
	background map[string]chan eventbus.Event

	regMu         sync.Mutex
	registrations map[string]string

	aliveFlag int32 // atomic bool
	done      chan struct{}
	doneOnce  sync.Once
}

// New wraps proc as a Session for workspaceID, publishing classified events
// onto bus. The caller must call Start to begin reading.
func New(workspaceID string, proc *child.Process, bus *eventbus.Bus, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		workspaceID:   workspaceID,
		proc:          proc,
		bus:           bus,
		log:           log,
		pending:       make(map[uint64]*waiter),
		background:    make(map[string]chan eventbus.Event),
		registrations: map[string]string{workspaceID: ""},
		done:          make(chan struct{}),
	}
	atomic.StoreInt32(&s.aliveFlag, 1)
	return s
}

// Start launches the reader goroutine. It returns once the goroutine has
// been spawned; it does not block for the child's lifetime.
func (s *Session) Start() {
	go s.readLoop()
}

// Alive reports whether the child is still believed to be running.
func (s *Session) Alive() bool {
	return atomic.LoadInt32(&s.aliveFlag) == 1
}

// WorkspaceID returns the session's primary workspace id.
func (s *Session) WorkspaceID() string { return s.workspaceID }

// RegisterWorkspace records that workspaceID now routes through this
// session, optionally associated with path. This is a forward-looking hook
// for session sharing across multiple workspaces; today every session
// serves exactly one workspace.
func (s *Session) RegisterWorkspace(workspaceID, path string) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.registrations[workspaceID] = path
}

// SendRequest allocates the next outbound request id, writes the request
// line, and blocks until the reader delivers the matching response, ctx is
// cancelled, or the session is torn down.
func (s *Session) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !s.Alive() {
		return nil, ErrChildExited
	}

	paramsRaw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	id := atomic.AddUint64(&s.nextID, 1)
	w := &waiter{method: method, resCh: make(chan waiterResult, 1)}

	s.pendingMu.Lock()
	s.pending[id] = w
	s.pendingMu.Unlock()

	line, err := json.Marshal(struct {
		ID     uint64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params,omitempty"`
	}{ID: id, Method: method, Params: paramsRaw})
	if err != nil {
		s.removePending(id)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := s.writeLine(line); err != nil {
		s.removePending(id)
		return nil, fmt.Errorf("io_error: %w", err)
	}

	select {
	case res := <-w.resCh:
		return res.result, res.err
	case <-s.done:
		return nil, ErrChildExited
	case <-ctx.Done():
		s.removePending(id)
		return nil, ctx.Err()
	}
}

// SendResponse writes {"id": requestID, "result": result} to the child's
// stdin. requestID must be the normalised (number-or-non-empty-string) id
// taken verbatim from a child-initiated request; it must never be a
// daemon-originated outbound id.
func (s *Session) SendResponse(requestID json.RawMessage, result any) error {
	resultRaw, err := marshalParams(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	line, err := json.Marshal(struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
	}{ID: requestID, Result: resultRaw})
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return s.writeLine(line)
}

// RegisterBackgroundPrompt allocates a fan-out channel for notifications
// correlated with threadID (by presence of a matching "threadId" field in
// the child's message params), used by the background-prompt helper in
// internal/ops to collect streamed assistant text.
func (s *Session) RegisterBackgroundPrompt(threadID string) <-chan eventbus.Event {
	ch := make(chan eventbus.Event, 256)
	s.bgMu.Lock()
	s.background[threadID] = ch
	s.bgMu.Unlock()
	return ch
}

// UnregisterBackgroundPrompt removes and closes the fan-out channel for
// threadID. Safe to call more than once.
func (s *Session) UnregisterBackgroundPrompt(threadID string) {
	s.bgMu.Lock()
	ch, ok := s.background[threadID]
	delete(s.background, threadID)
	s.bgMu.Unlock()
	if ok {
		close(ch)
	}
}

// Stop tears the session down: it stops the child process, fails every
// pending waiter with ErrChildExited, and closes every background-prompt
// channel. Safe to call more than once.
func (s *Session) Stop() error {
	atomic.StoreInt32(&s.aliveFlag, 0)
	s.doneOnce.Do(func() { close(s.done) })

	s.pendingMu.Lock()
	for id, w := range s.pending {
		select {
		case w.resCh <- waiterResult{err: ErrChildExited}:
		default:
		}
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()

	s.bgMu.Lock()
	for id, ch := range s.background {
		close(ch)
		delete(s.background, id)
	}
	s.bgMu.Unlock()

	return s.proc.Stop()
}

func (s *Session) removePending(id uint64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

func (s *Session) writeLine(line []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.proc.Stdin().Write(line); err != nil {
		return err
	}
	_, err := s.proc.Stdin().Write([]byte("\n"))
	return err
}

// readLoop is the reader task (§4C). It classifies every line from the
// child's stdout and never blocks on a slow event-bus subscriber (Publish
// itself is non-blocking).
func (s *Session) readLoop() {
	scanner := bufio.NewScanner(s.proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.handleLine([]byte(line))
	}

	s.log.Info("session reader observed child exit", "workspace_id", s.workspaceID)
	s.Stop()
}

func (s *Session) handleLine(raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		// The child's wire is trusted but we must be lenient about
		// spurious output; discard malformed lines.
		return
	}

	if len(msg.ID) > 0 {
		if id, ok := asUint64(msg.ID); ok {
			if s.deliverPending(id, msg) {
				return
			}
		}
		if msg.Method != "" {
			s.publishServerRequest(msg)
			return
		}
		// An id we don't recognise and no method: a stale or
		// duplicate response. Nothing to do with it.
		return
	}

	if msg.Method == "" {
		return
	}

	if isTerminalMethod(msg.Method) {
		s.publishTerminal(msg)
		return
	}

	s.publishNotification(msg)
}

func (s *Session) deliverPending(id uint64, msg wireMessage) bool {
	s.pendingMu.Lock()
	w, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
	if !ok {
		return false
	}

	res := waiterResult{}
	if len(msg.Error) > 0 {
		res.err = fmt.Errorf("%s", string(msg.Error))
	} else {
		res.result = msg.Result
	}
	select {
	case w.resCh <- res:
	default:
	}
	return true
}

func (s *Session) publishServerRequest(msg wireMessage) {
	ev := eventbus.Event{
		Kind:        eventbus.KindAppServer,
		WorkspaceID: s.workspaceID,
		Message: eventbus.Message{
			ID:                 msg.ID,
			Method:             msg.Method,
			Params:             msg.Params,
			RequestWorkspaceID: s.workspaceID,
			RequestIDEcho:      msg.ID,
		},
	}
	s.bus.Publish(ev)
	s.fanOutBackground(msg, ev)
}

func (s *Session) publishNotification(msg wireMessage) {
	ev := eventbus.Event{
		Kind:        eventbus.KindAppServer,
		WorkspaceID: s.workspaceID,
		Message: eventbus.Message{
			ID:     msg.ID,
			Method: msg.Method,
			Params: msg.Params,
		},
	}
	s.bus.Publish(ev)
	s.fanOutBackground(msg, ev)
}

func (s *Session) publishTerminal(msg wireMessage) {
	kind := eventbus.KindTerminalOutput
	if strings.HasSuffix(msg.Method, "/exit") {
		kind = eventbus.KindTerminalExit
	}
	s.bus.Publish(eventbus.Event{
		Kind:        kind,
		WorkspaceID: s.workspaceID,
		Terminal:    eventbus.TerminalPayload{Raw: msg.Params},
	})
}

// fanOutBackground additionally routes the event to a registered
// background-prompt channel when the message params carry a matching
// threadId, so internal/ops's background-prompt helper observes streamed
// assistant text without competing with ordinary subscribers for bus slots.
func (s *Session) fanOutBackground(msg wireMessage, ev eventbus.Event) {
	threadID := extractThreadID(msg.Params)
	if threadID == "" {
		return
	}
	s.bgMu.Lock()
	ch, ok := s.background[threadID]
	s.bgMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

func extractThreadID(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var probe struct {
		ThreadID string `json:"threadId"`
	}
	if err := json.Unmarshal(params, &probe); err != nil {
		return ""
	}
	return probe.ThreadID
}

func isTerminalMethod(method string) bool {
	return strings.HasPrefix(method, "terminal/")
}

func asUint64(raw json.RawMessage) (uint64, bool) {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var n2 uint64
		if _, err := fmt.Sscanf(s, "%d", &n2); err == nil {
			return n2, true
		}
	}
	return 0, false
}

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
