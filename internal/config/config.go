// Package config materializes the typed, merged view of the runtime's
// config.jsonc document that the rest of the process consumes: per-agent
// heartbeat/workspace/model resolution, channel settings, and CLI-facing
// defaults. internal/configstore owns the document itself (load, CAS
// mutation, backups); this package turns its raw map into the shapes the
// composition root and scheduler want, the way the teacher's internal/config
// turns a parsed JSON file into typed Config/AgentDefaults structs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultAgentID is used when no agent in the document is marked main.
const DefaultAgentID = "main"

// Config is the root of the merged, typed configuration document. It is
// derived from an internal/configstore.Snapshot via FromRaw and is a plain
// read-only value — no document-level mutation lives here.
type Config struct {
	Meta     map[string]any       `json:"meta,omitempty"`
	Paths    PathsConfig          `json:"paths,omitempty"`
	Models   map[string]Provider  `json:"models,omitempty"`
	Channels ChannelsConfig       `json:"channels,omitempty"`
	Logging  LoggingConfig        `json:"logging,omitempty"`
	Agents   AgentsConfig         `json:"agents,omitempty"`
	Memory   map[string]any       `json:"memory,omitempty"`
	Skills   map[string]any       `json:"skills,omitempty"`
	Voice    VoiceConfig          `json:"voice,omitempty"`
	Runtime  RuntimeConfig        `json:"runtime,omitempty"`

	// Extensions is an open bag for forward-compatible, unvalidated
	// sections. Never read by this package; round-tripped as-is.
	Extensions map[string]any `json:"extensions,omitempty"`

	// Cron is the legacy top-level cron list, superseded by
	// agents.<id>.heartbeat and the /reminders command but still accepted.
	Cron []any `json:"cron,omitempty"`
}

// PathsConfig names resolvable filesystem roots.
type PathsConfig struct {
	DataDir string `json:"dataDir,omitempty"`
	LogDir  string `json:"logDir,omitempty"`
}

// Provider is one entry of the top-level models map, keyed by provider id.
type Provider struct {
	BaseURL string      `json:"baseUrl,omitempty"`
	APIKey  string      `json:"apiKey,omitempty"`
	API     string      `json:"api,omitempty"`
	Models  []ModelSpec `json:"models,omitempty"`
}

// ModelSpec describes one selectable model within a provider.
type ModelSpec struct {
	ID            string            `json:"id"`
	Name          string            `json:"name,omitempty"`
	API           string            `json:"api,omitempty"`
	Input         []string          `json:"input,omitempty"` // e.g. "text", "image", "audio"
	Reasoning     bool              `json:"reasoning,omitempty"`
	ContextWindow int               `json:"contextWindow,omitempty"`
	MaxTokens     int               `json:"maxTokens,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Compat        string            `json:"compat,omitempty"`
}

// ChannelsConfig holds routing plus per-transport settings. Only the three
// transports this runtime implements are typed; unknown channel sections a
// document carries are simply ignored by this package.
type ChannelsConfig struct {
	Routing      map[string]string  `json:"routing,omitempty"`
	Telegram     TelegramConfig     `json:"telegram,omitempty"`
	Discord      DiscordConfig      `json:"discord,omitempty"`
	LocalDesktop LocalDesktopConfig `json:"localDesktop,omitempty"`
}

type TelegramConfig struct {
	Enabled        bool              `json:"enabled"`
	Token          string            `json:"token,omitempty"`
	Proxy          string            `json:"proxy,omitempty"`
	AllowFrom      []string          `json:"allowFrom,omitempty"`
	DMPolicy       string            `json:"dmPolicy,omitempty"`
	GroupPolicy    string            `json:"groupPolicy,omitempty"`
	RequireMention *bool             `json:"requireMention,omitempty"`
	MediaMaxBytes  int64             `json:"mediaMaxBytes,omitempty"`
	Groups         map[string]string `json:"groups,omitempty"`
}

type DiscordConfig struct {
	Enabled        bool     `json:"enabled"`
	Token          string   `json:"token,omitempty"`
	AllowFrom      []string `json:"allowFrom,omitempty"`
	DMPolicy       string   `json:"dmPolicy,omitempty"`
	GroupPolicy    string   `json:"groupPolicy,omitempty"`
	RequireMention *bool    `json:"requireMention,omitempty"`
}

type LocalDesktopConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port,omitempty"`
	PeerID         string   `json:"peerId,omitempty"`
	AuthToken      string   `json:"authToken,omitempty"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

type LoggingConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// AgentsConfig holds the shared defaults plus one override entry per agent.
// The document shape is flat — "defaults" alongside each agent id as
// sibling keys of the same object — so Unmarshal/MarshalJSON split and
// re-flatten rather than nesting a "list" key.
type AgentsConfig struct {
	Defaults AgentSettings            `json:"defaults,omitempty"`
	List     map[string]AgentSettings `json:"-"`
}

func (a *AgentsConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.List = map[string]AgentSettings{}
	for key, v := range raw {
		var settings AgentSettings
		if err := json.Unmarshal(v, &settings); err != nil {
			return fmt.Errorf("agents.%s: %w", key, err)
		}
		if key == "defaults" {
			a.Defaults = settings
			continue
		}
		a.List[key] = settings
	}
	return nil
}

func (a AgentsConfig) MarshalJSON() ([]byte, error) {
	out := map[string]AgentSettings{"defaults": a.Defaults}
	for id, settings := range a.List {
		out[id] = settings
	}
	return json.Marshal(out)
}

// AgentSettings is one agent's (or the shared defaults') configuration.
// Per-agent entries are sparse; ResolveAgent overlays a non-zero field here
// onto the defaults.
type AgentSettings struct {
	Main           bool             `json:"main,omitempty"`
	Workspace      string           `json:"workspace,omitempty"`
	Model          string           `json:"model,omitempty"`
	ImageModel     string           `json:"imageModel,omitempty"`
	Tools          []string         `json:"tools,omitempty"`
	Skills         []string         `json:"skills,omitempty"`
	Sandbox        map[string]any   `json:"sandbox,omitempty"`
	Exec           map[string]any   `json:"exec,omitempty"`
	Heartbeat      *HeartbeatConfig `json:"heartbeat,omitempty"`
	Lifecycle      map[string]any   `json:"lifecycle,omitempty"`
	Thinking       string           `json:"thinking,omitempty"`
	Output         map[string]any   `json:"output,omitempty"`
	ContextPruning map[string]any   `json:"contextPruning,omitempty"`
}

// HeartbeatConfig configures one agent's periodic heartbeat. A nil Enabled
// means "inherit from defaults"; ResolveHeartbeat applies that merge.
type HeartbeatConfig struct {
	Enabled     *bool              `json:"enabled,omitempty"`
	Every       string             `json:"every,omitempty"`
	Prompt      string             `json:"prompt,omitempty"`
	ActiveHours *ActiveHoursConfig `json:"activeHours,omitempty"`
}

type ActiveHoursConfig struct {
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type VoiceConfig struct {
	STT  map[string]any `json:"stt,omitempty"`
	TTS  map[string]any `json:"tts,omitempty"`
	VAD  map[string]any `json:"vad,omitempty"`
	Wake map[string]any `json:"wake,omitempty"`
	UI   map[string]any `json:"ui,omitempty"`
}

type RuntimeConfig struct {
	Queue              map[string]any `json:"queue,omitempty"`
	Cron               map[string]any `json:"cron,omitempty"`
	Auth               map[string]any `json:"auth,omitempty"`
	SanitizeToolSchema bool           `json:"sanitizeToolSchema,omitempty"`
}

// FromRaw decodes a configstore snapshot's raw document into a typed Config,
// then runs the structural checks spec §8 names (e.g. a localDesktop port
// outside 1-65535).
func FromRaw(raw map[string]any) (*Config, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal raw config: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config document: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if p := c.Channels.LocalDesktop.Port; p != 0 && (p < 1 || p > 65535) {
		return fmt.Errorf("channels.localDesktop.port %d out of range 1-65535", p)
	}
	return nil
}

// ResolveAgent merges agentID's override entry onto the shared defaults.
// Zero-valued fields in the override never shadow a default.
func (c *Config) ResolveAgent(agentID string) AgentSettings {
	d := c.Agents.Defaults
	override, ok := c.Agents.List[agentID]
	if !ok {
		return d
	}
	if override.Workspace != "" {
		d.Workspace = override.Workspace
	}
	if override.Model != "" {
		d.Model = override.Model
	}
	if override.ImageModel != "" {
		d.ImageModel = override.ImageModel
	}
	if len(override.Tools) > 0 {
		d.Tools = override.Tools
	}
	if len(override.Skills) > 0 {
		d.Skills = override.Skills
	}
	if override.Sandbox != nil {
		d.Sandbox = override.Sandbox
	}
	if override.Exec != nil {
		d.Exec = override.Exec
	}
	if override.Heartbeat != nil {
		d.Heartbeat = override.Heartbeat
	}
	if override.Thinking != "" {
		d.Thinking = override.Thinking
	}
	d.Main = override.Main
	return d
}

// ResolveHeartbeat merges agents.defaults.heartbeat with agentID's override
// and returns the effective enabled flag, duration string, and prompt, per
// spec §4.8.
func (c *Config) ResolveHeartbeat(agentID string) (enabled bool, every string, prompt string) {
	hb := c.Agents.Defaults.Heartbeat
	if override, ok := c.Agents.List[agentID]; ok && override.Heartbeat != nil {
		hb = mergeHeartbeat(c.Agents.Defaults.Heartbeat, override.Heartbeat)
	}
	if hb == nil {
		return false, "", ""
	}
	if hb.Enabled != nil {
		enabled = *hb.Enabled
	}
	return enabled, hb.Every, hb.Prompt
}

func mergeHeartbeat(base, override *HeartbeatConfig) *HeartbeatConfig {
	if base == nil {
		return override
	}
	merged := *base
	if override.Enabled != nil {
		merged.Enabled = override.Enabled
	}
	if override.Every != "" {
		merged.Every = override.Every
	}
	if override.Prompt != "" {
		merged.Prompt = override.Prompt
	}
	if override.ActiveHours != nil {
		merged.ActiveHours = override.ActiveHours
	}
	return &merged
}

// ResolveWorkspace returns agentID's workspace directory, home-expanded and
// made absolute.
func (c *Config) ResolveWorkspace(agentID string) string {
	path := ExpandHome(c.ResolveAgent(agentID).Workspace)
	if path == "" {
		path = ExpandHome(filepath.Join("~", ".mozi", "workspace", agentID))
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return path
}

// DefaultAgentIDOf returns the id of the agent marked main, or DefaultAgentID
// if none is.
func (c *Config) DefaultAgentIDOf() string {
	for id, settings := range c.Agents.List {
		if settings.Main {
			return id
		}
	}
	return DefaultAgentID
}

// ExpandHome replaces a leading ~ with the user's home directory, the way
// the teacher's internal/config.ExpandHome does.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
