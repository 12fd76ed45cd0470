package ops

import (
	"os"
	"time"
)

// DaemonInfo is the daemon_info response: identity fields a client can
// show in an "about" panel or use to detect a version mismatch.
type DaemonInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	PID     int    `json:"pid"`
	Mode    string `json:"mode"` // "insecure" or "token"
}

// Info returns the daemon's identity record.
func (d *Deps) Info() DaemonInfo {
	mode := "token"
	if d.InsecureNoAuth {
		mode = "insecure"
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return DaemonInfo{Name: "codexmonitord", Version: version, PID: os.Getpid(), Mode: mode}
}

// ShutdownGrace is how long daemon_shutdown waits before exiting, so the
// RPC response has time to flush to the client (§5).
const ShutdownGrace = 100 * time.Millisecond

// Shutdown schedules process exit after ShutdownGrace. It returns
// immediately; the caller's response is expected to already be on its way
// to the wire by the time the process actually exits.
func (d *Deps) Shutdown() {
	if d.ShutdownFunc == nil {
		return
	}
	go func() {
		time.Sleep(ShutdownGrace)
		d.ShutdownFunc()
	}()
}
