// Package sessions owns the process-wide {workspace_id -> *session.Session}
// map (§3's "Sessions map: single mutex keyed by workspace id"). It is the
// one place that knows how to turn a registry.Entry into a running child
// process: resolving the agent binary through the trust policy and the
// process-wide AppSettings fallback chain, then wrapping it in a
// session.Session wired to the shared event bus.
package sessions

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/workspace/codexmonitord/internal/appsettings"
	"github.com/workspace/codexmonitord/internal/child"
	"github.com/workspace/codexmonitord/internal/eventbus"
	"github.com/workspace/codexmonitord/internal/registry"
	"github.com/workspace/codexmonitord/internal/session"
	"github.com/workspace/codexmonitord/internal/trustpolicy"
)

// Manager owns every live Session, keyed by workspace id.
type Manager struct {
	bus      *eventbus.Bus
	settings *appsettings.Store
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New creates an empty Manager.
func New(bus *eventbus.Bus, settings *appsettings.Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		bus:      bus,
		settings: settings,
		log:      log,
		sessions: make(map[string]*session.Session),
	}
}

// Spawn resolves entry's agent binary through the trust policy, spawns it,
// and registers the resulting Session under entry.ID. It is the trySpawn
// callback the registry's Add*/remove-and-respawn flows invoke: on error
// nothing is registered, matching the all-or-nothing contract of §4E.
func (m *Manager) Spawn(entry registry.Entry) error {
	bin := m.settings.ResolveAgentBin(entry.AgentBinOverride)
	if err := trustpolicy.CheckAgentBin(bin); err != nil {
		return fmt.Errorf("agent_bin rejected: %w", err)
	}

	var extraEnv []string
	if entry.Settings.AgentHome != "" {
		extraEnv = append(extraEnv, "CODEX_HOME="+entry.Settings.AgentHome)
	}

	proc, err := child.Spawn(child.Config{
		Bin:      bin,
		Args:     m.settings.Get().DefaultArgs,
		WorkDir:  entry.Path,
		ExtraEnv: extraEnv,
	})
	if err != nil {
		return err
	}

	sess := session.New(entry.ID, proc, m.bus, m.log.With("workspace_id", entry.ID))
	sess.Start()

	m.mu.Lock()
	if old, ok := m.sessions[entry.ID]; ok {
		m.mu.Unlock()
		_ = old.Stop()
		m.mu.Lock()
	}
	m.sessions[entry.ID] = sess
	m.mu.Unlock()
	return nil
}

// Get returns the live Session for workspaceID, if any.
func (m *Manager) Get(workspaceID string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[workspaceID]
	return s, ok
}

// Require is Get plus a uniform "not connected" error for handlers that
// need a live session to do anything.
func (m *Manager) Require(workspaceID string) (*session.Session, error) {
	s, ok := m.Get(workspaceID)
	if !ok || !s.Alive() {
		return nil, fmt.Errorf("workspace %q has no running session", workspaceID)
	}
	return s, nil
}

// Stop tears down and forgets the session for workspaceID, if any. Safe to
// call when no session is registered.
func (m *Manager) Stop(workspaceID string) error {
	m.mu.Lock()
	s, ok := m.sessions[workspaceID]
	delete(m.sessions, workspaceID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Stop()
}

// StopAll tears down every live session, used at daemon shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*session.Session)
	m.mu.Unlock()
	for _, s := range all {
		_ = s.Stop()
	}
}
