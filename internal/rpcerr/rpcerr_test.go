package rpcerr

import (
	"fmt"
	"testing"

	"github.com/workspace/codexmonitord/internal/parampluck"
)

func TestClassifyInvalidParams(t *testing.T) {
	p, _ := parampluck.Parse(nil)
	_, err := p.RequiredString("workspaceId")
	wire := Classify(fmt.Errorf("start_thread: %w", err))
	if wire.Code != CodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS, got %s", wire.Code)
	}
}

func TestClassifyMethodNotFound(t *testing.T) {
	wire := Classify(fmt.Errorf("dispatch: %w", ErrMethodNotFound))
	if wire.Code != CodeMethodNotFound {
		t.Fatalf("expected METHOD_NOT_FOUND, got %s", wire.Code)
	}
}

func TestClassifyUnauthorized(t *testing.T) {
	wire := Classify(ErrUnauthorized)
	if wire.Code != CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %s", wire.Code)
	}
}

func TestClassifyInternalFallback(t *testing.T) {
	wire := Classify(fmt.Errorf("git status failed: exit status 1"))
	if wire.Code != CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %s", wire.Code)
	}
}
