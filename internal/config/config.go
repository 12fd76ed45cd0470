// Package config loads the daemon's CLI configuration: listen address,
// data directory, and bearer-token auth mode. The contract matches the
// command documented for operators: `daemon --listen <addr> --data-dir
// <path> (--token <s> | --insecure-no-auth)`.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Config holds the daemon's resolved startup configuration.
type Config struct {
	Listen         string
	DataDir        string
	Token          string // empty when InsecureNoAuth is set
	InsecureNoAuth bool
	LogLevel       string
	LogFormat      string
}

const (
	envToken     = "CODEX_MONITOR_DAEMON_TOKEN"
	envListen    = "CODEX_MONITOR_DAEMON_LISTEN"
	envLogLevel  = "CODEX_MONITOR_DAEMON_LOG_LEVEL"
	envLogFormat = "CODEX_MONITOR_DAEMON_LOG_FORMAT"
)

// UsageError is returned for a malformed invocation; callers should exit 2.
type UsageError struct{ msg string }

func (e *UsageError) Error() string { return e.msg }

// Parse parses args (typically os.Args[1:]) into a Config. Flag-parsing
// errors and the explicit validation below are both reported as
// *UsageError so main can map them to exit code 2.
func Parse(args []string, errOut io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(errOut)

	listen := fs.String("listen", getEnv(envListen, "127.0.0.1:7737"), "TCP address to listen on")
	dataDir := fs.String("data-dir", "", "directory for workspaces.json, settings.json, worktrees, and the audit store")
	token := fs.String("token", getEnv(envToken, ""), "shared bearer token clients must present (or set "+envToken+")")
	insecure := fs.Bool("insecure-no-auth", false, "dev-only: skip authentication entirely")
	logLevel := fs.String("log-level", getEnv(envLogLevel, ""), "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", getEnv(envLogFormat, ""), "log format: text or json")

	if err := fs.Parse(args); err != nil {
		return nil, &UsageError{msg: err.Error()}
	}

	if *dataDir == "" {
		return nil, &UsageError{msg: "--data-dir is required"}
	}
	if *token == "" && !*insecure {
		return nil, &UsageError{msg: fmt.Sprintf("either --token or --insecure-no-auth is required (token may also come from $%s)", envToken)}
	}
	if *token != "" && *insecure {
		return nil, &UsageError{msg: "--token and --insecure-no-auth are mutually exclusive"}
	}

	return &Config{
		Listen:         *listen,
		DataDir:        *dataDir,
		Token:          *token,
		InsecureNoAuth: *insecure,
		LogLevel:       *logLevel,
		LogFormat:      *logFormat,
	}, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
