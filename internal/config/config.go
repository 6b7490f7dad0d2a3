// Package config loads the client's on-disk YAML configuration: the
// gateway endpoint, status-hint/probe URLs, credential store path, and
// every named timeout the supervisor uses. It mirrors the loader shape
// seen in the wider retrieval pack's YAML-backed config types (parse
// into a plain struct, validate required fields, wrap read/parse
// failures with the file path attached).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/l2client/internal/supervisor"
	"github.com/udisondev/l2client/internal/transport"
)

// Config is the full on-disk client configuration.
type Config struct {
	Endpoint    EndpointConfig    `yaml:"endpoint"`
	Credentials CredentialsConfig `yaml:"credentials"`
	StatusHint  StatusHintConfig  `yaml:"status_hint"`
	NetProbe    NetProbeConfig    `yaml:"net_probe"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
}

// EndpointConfig describes the game server gateway to dial.
type EndpointConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	TLS         bool     `yaml:"tls"`
	CDNBaseURL  string   `yaml:"cdn_base_url"`
	Backups     []string `yaml:"backups,omitempty"`
	OfflineMode bool     `yaml:"offline_mode,omitempty"`
}

// CredentialsConfig locates the guest-credential blob on disk.
type CredentialsConfig struct {
	Path string `yaml:"path"`
}

// StatusHintConfig points at the primary/fallback status-hint documents.
type StatusHintConfig struct {
	PrimaryURL   string `yaml:"primary_url"`
	SecondaryURL string `yaml:"secondary_url"`
}

// NetProbeConfig points at the reachability probe target.
type NetProbeConfig struct {
	URL string `yaml:"url"`
}

// TimeoutsConfig carries every spec §5 timeout/limit, one field per
// supervisor.Config field, expressed as parseable duration strings
// (e.g. "10s") so the file stays human-editable.
type TimeoutsConfig struct {
	ConnectTimeout           string `yaml:"connect_timeout"`
	ServerIdentifyTimeout    string `yaml:"server_identify_timeout"`
	ServerSessionInitTimeout string `yaml:"server_session_init_timeout"`
	ConfigFetchTimeout       string `yaml:"config_fetch_timeout"`
	ConfigFetchAttemptsMax   int    `yaml:"config_fetch_attempts_max"`
	CloseFlushTimeout        string `yaml:"close_flush_timeout"`
	StatusHintCheckDelay     string `yaml:"status_hint_check_delay"`
	StatusHintConnectTimeout string `yaml:"status_hint_connect_timeout"`
	StatusHintReadTimeout    string `yaml:"status_hint_read_timeout"`

	SessionResumptionAttemptMaxDuration           string `yaml:"session_resumption_attempt_max_duration"`
	SessionPingPongDurationIncidentThreshold      string `yaml:"session_ping_pong_duration_incident_threshold"`
	MaxSessionPingPongDurationIncidentsPerSession int    `yaml:"max_session_ping_pong_duration_incidents_per_session"`
	MaxSessionRetainingFrameDuration              string `yaml:"max_session_retaining_frame_duration"`
	MaxSessionRetainingPauseDuration              string `yaml:"max_session_retaining_pause_duration"`
	MaxNonErrorMaskingPauseDuration               string `yaml:"max_non_error_masking_pause_duration"`

	ConnectAttemptsMax     int    `yaml:"connect_attempts_max"`
	ConnectAttemptInterval string `yaml:"connect_attempt_interval"`
}

// LoadError wraps a config read/parse/validate failure with the path
// that produced it.
type LoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("config: %s: %s", e.Path, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Default returns the built-in configuration: an offline-mode endpoint
// and the supervisor's own suggested timeouts, suitable for the demo
// binaries and as a Load fallback.
func Default() Config {
	return fromSupervisorDefaults(supervisor.DefaultConfig())
}

// Load reads and parses the YAML file at path. Missing duration or
// attempt-limit fields fall back to the supervisor's own defaults field
// by field, so a config file only needs to override what it cares
// about.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{Path: path, Message: "failed to read file", Cause: err}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &LoadError{Path: path, Message: "failed to parse YAML", Cause: err}
	}

	if cfg.Endpoint.Host == "" && !cfg.Endpoint.OfflineMode {
		return Config{}, &LoadError{Path: path, Message: "endpoint.host is required unless endpoint.offline_mode is set"}
	}
	if cfg.Credentials.Path == "" {
		return Config{}, &LoadError{Path: path, Message: "credentials.path is required"}
	}

	return cfg, nil
}

// TransportEndpoint converts EndpointConfig into the transport layer's
// own type.
func (c Config) TransportEndpoint() transport.Endpoint {
	return transport.Endpoint{
		Host:        c.Endpoint.Host,
		Port:        c.Endpoint.Port,
		TLS:         c.Endpoint.TLS,
		CDNBaseURL:  c.Endpoint.CDNBaseURL,
		Backups:     c.Endpoint.Backups,
		OfflineMode: c.Endpoint.OfflineMode,
	}
}

// SupervisorConfig converts TimeoutsConfig into a supervisor.Config. An
// empty duration string or a zero count falls back to
// supervisor.DefaultConfig's value; every other duration string is
// parsed with time.ParseDuration. A Config built by Default or Load
// already carries the default values as strings, so a field a config
// file never mentions is parsed back to its default.
func (c Config) SupervisorConfig() (supervisor.Config, error) {
	t := c.Timeouts
	var errs []error
	dur := func(s string, fallback time.Duration) time.Duration {
		if s == "" {
			return fallback
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse duration %q: %w", s, err))
			return fallback
		}
		return d
	}

	def := supervisor.DefaultConfig()
	out := supervisor.Config{
		ConnectTimeout:           dur(t.ConnectTimeout, def.ConnectTimeout),
		ServerIdentifyTimeout:    dur(t.ServerIdentifyTimeout, def.ServerIdentifyTimeout),
		ServerSessionInitTimeout: dur(t.ServerSessionInitTimeout, def.ServerSessionInitTimeout),
		ConfigFetchTimeout:       dur(t.ConfigFetchTimeout, def.ConfigFetchTimeout),
		ConfigFetchAttemptsMax:   orInt(t.ConfigFetchAttemptsMax, def.ConfigFetchAttemptsMax),
		CloseFlushTimeout:        dur(t.CloseFlushTimeout, def.CloseFlushTimeout),
		StatusHintCheckDelay:     dur(t.StatusHintCheckDelay, def.StatusHintCheckDelay),
		StatusHintConnectTimeout: dur(t.StatusHintConnectTimeout, def.StatusHintConnectTimeout),
		StatusHintReadTimeout:    dur(t.StatusHintReadTimeout, def.StatusHintReadTimeout),

		SessionResumptionAttemptMaxDuration:           dur(t.SessionResumptionAttemptMaxDuration, def.SessionResumptionAttemptMaxDuration),
		SessionPingPongDurationIncidentThreshold:      dur(t.SessionPingPongDurationIncidentThreshold, def.SessionPingPongDurationIncidentThreshold),
		MaxSessionPingPongDurationIncidentsPerSession: orInt(t.MaxSessionPingPongDurationIncidentsPerSession, def.MaxSessionPingPongDurationIncidentsPerSession),
		MaxSessionRetainingFrameDuration:               dur(t.MaxSessionRetainingFrameDuration, def.MaxSessionRetainingFrameDuration),
		MaxSessionRetainingPauseDuration:               dur(t.MaxSessionRetainingPauseDuration, def.MaxSessionRetainingPauseDuration),
		MaxNonErrorMaskingPauseDuration:                dur(t.MaxNonErrorMaskingPauseDuration, def.MaxNonErrorMaskingPauseDuration),

		ConnectAttemptsMax:     orInt(t.ConnectAttemptsMax, def.ConnectAttemptsMax),
		ConnectAttemptInterval: dur(t.ConnectAttemptInterval, def.ConnectAttemptInterval),
	}

	if len(errs) > 0 {
		return supervisor.Config{}, errs[0]
	}
	return out, nil
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func fromSupervisorDefaults(sc supervisor.Config) Config {
	d := func(v time.Duration) string { return v.String() }
	return Config{
		Endpoint: EndpointConfig{OfflineMode: true},
		Credentials: CredentialsConfig{
			Path: "credentials.bin",
		},
		Timeouts: TimeoutsConfig{
			ConnectTimeout:           d(sc.ConnectTimeout),
			ServerIdentifyTimeout:    d(sc.ServerIdentifyTimeout),
			ServerSessionInitTimeout: d(sc.ServerSessionInitTimeout),
			ConfigFetchTimeout:       d(sc.ConfigFetchTimeout),
			ConfigFetchAttemptsMax:   sc.ConfigFetchAttemptsMax,
			CloseFlushTimeout:        d(sc.CloseFlushTimeout),
			StatusHintCheckDelay:     d(sc.StatusHintCheckDelay),
			StatusHintConnectTimeout: d(sc.StatusHintConnectTimeout),
			StatusHintReadTimeout:    d(sc.StatusHintReadTimeout),

			SessionResumptionAttemptMaxDuration:           d(sc.SessionResumptionAttemptMaxDuration),
			SessionPingPongDurationIncidentThreshold:      d(sc.SessionPingPongDurationIncidentThreshold),
			MaxSessionPingPongDurationIncidentsPerSession: sc.MaxSessionPingPongDurationIncidentsPerSession,
			MaxSessionRetainingFrameDuration:               d(sc.MaxSessionRetainingFrameDuration),
			MaxSessionRetainingPauseDuration:               d(sc.MaxSessionRetainingPauseDuration),
			MaxNonErrorMaskingPauseDuration:                d(sc.MaxNonErrorMaskingPauseDuration),

			ConnectAttemptsMax:     sc.ConnectAttemptsMax,
			ConnectAttemptInterval: d(sc.ConnectAttemptInterval),
		},
	}
}
