package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/workspace/codexmonitord/internal/eventbus"
	"github.com/workspace/codexmonitord/internal/rpcerr"
)

// wireRequest is one line a client may send: either an `{id,method,params}`
// request or bare auth handshake with the same shape.
type wireRequest struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type wireResponse struct {
	ID     uint64        `json:"id"`
	Result any           `json:"result,omitempty"`
	Error  *rpcerr.Wire  `json:"error,omitempty"`
}

type wireNotification struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// conn is one client connection: an inbound reader, an outbound writer
// draining outCh, and (once authenticated) an event subscriber task, per
// §4F.
type conn struct {
	server *Server
	nc     net.Conn

	ctx    context.Context
	cancel context.CancelFunc

	outCh chan []byte
	sem   chan struct{}

	authMu sync.Mutex
	authed bool

	closeOnce sync.Once
}

func (c *conn) run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	c.readLoop()
	c.close()
	wg.Wait()
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.nc.Close()
	})
}

func (c *conn) writeLoop() {
	w := bufio.NewWriter(c.nc)
	for {
		select {
		case line, ok := <-c.outCh:
			if !ok {
				return
			}
			if _, err := w.Write(line); err != nil {
				return
			}
			if _, err := w.WriteString("\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(wireResponse{Error: ptr(rpcerr.SerializationFailure())})
	}
	select {
	case c.outCh <- data:
	case <-c.ctx.Done():
	}
}

func ptr[T any](v T) *T { return &v }

func (c *conn) readLoop() {
	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var subWG sync.WaitGroup
	var subOnce sync.Once
	startSubscriber := func() {
		subOnce.Do(func() {
			subWG.Add(1)
			go func() {
				defer subWG.Done()
				c.subscribeLoop()
			}()
		})
	}
	if c.isAuthed() {
		startSubscriber()
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(trimSpace(line)) == 0 {
			continue
		}
		var req wireRequest
		if err := json.Unmarshal(line, &req); err != nil {
			continue // malformed JSON is silently dropped (§4F)
		}

		if !c.isAuthed() {
			if req.Method != "auth" {
				c.enqueue(wireResponse{ID: req.ID, Error: ptr(rpcerr.Wire{Code: rpcerr.CodeUnauthorized, Message: "unauthorized"})})
				continue
			}
			if c.tryAuth(req.Params) {
				c.enqueue(wireResponse{ID: req.ID, Result: okResult{true}})
				startSubscriber()
			} else {
				c.enqueue(wireResponse{ID: req.ID, Error: ptr(rpcerr.Wire{Code: rpcerr.CodeUnauthorized, Message: "unauthorized"})})
			}
			continue
		}

		if req.Method == "auth" {
			c.enqueue(wireResponse{ID: req.ID, Result: okResult{true}})
			continue
		}

		select {
		case c.sem <- struct{}{}:
		case <-c.ctx.Done():
			subWG.Wait()
			return
		}
		go c.handle(req)
	}

	subWG.Wait()
}

type okResult struct {
	OK bool `json:"ok"`
}

func (c *conn) handle(req wireRequest) {
	defer func() { <-c.sem }()
	result, err := c.server.dispatcher.Dispatch(c.ctx, req.Method, req.Params)
	if err != nil {
		wire := rpcerr.Classify(err)
		c.enqueue(wireResponse{ID: req.ID, Error: &wire})
		return
	}
	c.enqueue(wireResponse{ID: req.ID, Result: result})
}

func (c *conn) isAuthed() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authed
}

// tryAuth validates params against the server's shared token, accepting
// either the bare string form or {"token": "..."} (§4F/§6).
func (c *conn) tryAuth(params json.RawMessage) bool {
	if c.server.insecureNoAuth {
		c.authMu.Lock()
		c.authed = true
		c.authMu.Unlock()
		return true
	}
	token := extractToken(params)
	if token == "" || token != c.server.token {
		return false
	}
	c.authMu.Lock()
	c.authed = true
	c.authMu.Unlock()
	return true
}

func extractToken(params json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(params, &asString); err == nil {
		return asString
	}
	var asObject struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(params, &asObject); err == nil {
		return asObject.Token
	}
	return ""
}

// subscribeLoop relays bus events to this connection as notifications,
// translating Lag into a codex/eventStreamLagged notification (§4F).
func (c *conn) subscribeLoop() {
	sub := c.server.bus.Subscribe()
	defer sub.Unsubscribe()

	for {
		ev, err := sub.Recv(c.ctx)
		if err != nil {
			return
		}
		switch ev.Kind {
		case eventbus.KindLagNotice:
			c.enqueue(wireNotification{
				Method: "app-server-event",
				Params: map[string]any{
					"workspace_id": "__daemon__",
					"message": map[string]any{
						"method": "codex/eventStreamLagged",
						"params": map[string]any{"droppedCount": ev.Dropped},
					},
				},
			})
		case eventbus.KindAppServer:
			c.enqueue(wireNotification{
				Method: "app-server-event",
				Params: map[string]any{
					"workspace_id": ev.WorkspaceID,
					"message":      ev.Message,
				},
			})
		case eventbus.KindTerminalOutput, eventbus.KindTerminalExit:
			c.enqueue(wireNotification{
				Method: "terminal-event",
				Params: map[string]any{
					"workspace_id": ev.WorkspaceID,
					"kind":         string(ev.Kind),
					"terminal":     ev.Terminal,
				},
			})
		}
	}
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpaceByte(b[start]) {
		start++
	}
	for end > start && isSpaceByte(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpaceByte(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }
