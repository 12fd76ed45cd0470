// Package dispatcher implements §4G: it parses a method name and params
// JSON into a call against internal/ops, enforces the parameter-range
// limits of §7, and lets internal/rpcerr classify whatever error comes
// back. Handlers never construct wire errors directly.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/parampluck"
	"github.com/workspace/codexmonitord/internal/rpcerr"
)

// Handler resolves one RPC method against Deps, given its parsed params.
type Handler func(ctx context.Context, deps *ops.Deps, params parampluck.Params) (any, error)

// Dispatcher routes method names to Handlers. Methods are matched exactly:
// no prefixing, no case folding (§4G).
type Dispatcher struct {
	deps     *ops.Deps
	handlers map[string]Handler
}

// New builds a Dispatcher wired to deps with the full method table (§6).
func New(deps *ops.Deps) *Dispatcher {
	d := &Dispatcher{deps: deps, handlers: make(map[string]Handler)}
	registerMethods(d)
	return d
}

func (d *Dispatcher) register(method string, h Handler) {
	d.handlers[method] = h
}

// Dispatch parses paramsRaw, looks up method, and invokes its handler. The
// returned error, if any, has already been produced by a handler or by
// this method's own lookup/parse failure; the caller (internal/server)
// runs it through rpcerr.Classify before putting it on the wire.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, paramsRaw json.RawMessage) (any, error) {
	h, ok := d.handlers[method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown method: %s", rpcerr.ErrMethodNotFound, method)
	}
	params, err := parampluck.Parse(paramsRaw)
	if err != nil {
		return nil, err
	}
	return h(ctx, d.deps, params)
}

// Methods returns every registered method name, for introspection/tests.
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	return out
}
