package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Key layout of the supported device family.
const (
	KeyCount = 15
	MaxKey   = KeyCount - 1

	// MaxFontSize is the tile height in pixels; larger text cannot fit.
	MaxFontSize = 72
)

// Config represents one immutable configuration snapshot.
// A reload produces a new *Config; existing values are never mutated.
type Config struct {
	Deckd           DeckdConfig         `yaml:"deckd"`
	Pages           map[string]Page     `yaml:"pages"`
	Log             LogConfig           `yaml:"log"`
	Database        DatabaseConfig      `yaml:"database"`
	HomeAssistant   HomeAssistantConfig `yaml:"homeassistant"`
	MQTT            MQTTConfig          `yaml:"mqtt"`
	Healthcheck     HealthcheckConfig   `yaml:"healthcheck"`
	ShutdownTimeout Duration            `yaml:"shutdown_timeout"` // Upper bound on waiting for background tasks

	// BaseDir is the directory the file was loaded from. Relative icon paths resolve against it.
	BaseDir string `yaml:"-"`
}

// DeckdConfig contains daemon-wide device and rendering settings
type DeckdConfig struct {
	Brightness           *int           `yaml:"brightness"`             // 0-100 (default: 80)
	ReconnectInterval    Duration       `yaml:"reconnect_interval"`     // Wait between discovery attempts (default: 2s)
	HomePage             string         `yaml:"home_page"`              // Page shown on startup (default: home)
	Defaults             ButtonDefaults `yaml:"defaults"`               // Style applied unless a button overrides it
	SettleDelay          Duration       `yaml:"settle_delay"`           // Wait before re-polling state after an action (default: 3s)
	StateRefreshInterval Duration       `yaml:"state_refresh_interval"` // Periodic re-render of stateful pages (default: 5s)
}

// GetBrightness returns brightness with default
func (c *DeckdConfig) GetBrightness() int {
	if c.Brightness == nil {
		return 80
	}
	return *c.Brightness
}

// ButtonDefaults is the fallback style for every button
type ButtonDefaults struct {
	Background string  `yaml:"background"`
	TextColor  string  `yaml:"text_color"`
	FontSize   float64 `yaml:"font_size"`
	Font       string  `yaml:"font"`
}

// Page is a named, ordered list of buttons
type Page struct {
	Name    string   `yaml:"name"`
	Buttons []Button `yaml:"buttons"`
}

// Button returns the first button bound to key.
// Later buttons with the same key are shadowed.
func (p *Page) Button(key int) (*Button, bool) {
	for i := range p.Buttons {
		if p.Buttons[i].Key == key {
			return &p.Buttons[i], true
		}
	}
	return nil, false
}

// EntityIDs returns the distinct state entities referenced on the page, in button order.
func (p *Page) EntityIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, b := range p.Buttons {
		if b.StateEntity == "" || seen[b.StateEntity] {
			continue
		}
		seen[b.StateEntity] = true
		ids = append(ids, b.StateEntity)
	}
	return ids
}

// IsStateful reports whether any button on the page is bound to an entity.
func (p *Page) IsStateful() bool {
	for _, b := range p.Buttons {
		if b.StateEntity != "" {
			return true
		}
	}
	return false
}

// Button is a single key definition
type Button struct {
	Key          int     `yaml:"key"`
	Label        string  `yaml:"label"`
	Icon         string  `yaml:"icon"`          // PNG/JPEG path, relative to the config dir or absolute
	Background   string  `yaml:"background"`    // Hex color override
	TextColor    string  `yaml:"text_color"`    // Hex color override
	OnBackground string  `yaml:"on_background"` // Used while StateEntity is "on"
	OnTextColor  string  `yaml:"on_text_color"` // Used while StateEntity is "on"
	FontSize     float64 `yaml:"font_size"`
	Font         string  `yaml:"font"`
	StateEntity  string  `yaml:"state_entity"` // External entity id, e.g. light.kitchen
	OnPress      Action  `yaml:"-"`

	keyMissing bool
	labelSet   bool
}

// HasLabel reports whether the button defines a label, even an empty one.
// An icon moves to the top whenever a label is present.
func (b *Button) HasLabel() bool {
	return b.labelSet || b.Label != ""
}

// UnmarshalYAML decodes a button and its tagged on_press action.
func (b *Button) UnmarshalYAML(node *yaml.Node) error {
	type plain Button
	var raw struct {
		plain   `yaml:",inline"`
		OnPress yaml.Node `yaml:"on_press"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	*b = Button(raw.plain)
	b.keyMissing = !hasField(node, "key")
	b.labelSet = hasField(node, "label")
	if raw.OnPress.Kind == 0 {
		return nil
	}

	action, err := decodeAction(&raw.OnPress)
	if err != nil {
		return err
	}
	b.OnPress = action
	return nil
}

// hasField reports whether a mapping node defines name
func hasField(node *yaml.Node, name string) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == name {
			return true
		}
	}
	return false
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// DatabaseConfig contains action ledger settings. An empty path disables the ledger.
type DatabaseConfig struct {
	Path            string   `yaml:"path"`
	RetentionPeriod Duration `yaml:"retention_period"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// IsEnabled returns whether the ledger database is configured
func (c *DatabaseConfig) IsEnabled() bool {
	return c.Path != ""
}

// HomeAssistantConfig contains entity state source settings.
// URL and Token fall back to HA_URL and HA_TOKEN.
type HomeAssistantConfig struct {
	URL          string   `yaml:"url"`
	Token        string   `yaml:"token"`
	Timeout      Duration `yaml:"timeout"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
}

// MQTTConfig contains the optional MQTT bridge settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads, parses and validates the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}

	if abs, err := filepath.Abs(path); err == nil {
		cfg.BaseDir = filepath.Dir(abs)
	} else {
		cfg.BaseDir = filepath.Dir(path)
	}

	return cfg, nil
}

// Parse decodes and validates configuration from YAML bytes.
// BaseDir is left empty.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, &ParseError{Err: err}
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	warnDuplicateKeys(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Pages == nil {
		cfg.Pages = make(map[string]Page)
	}

	// Deckd defaults
	if cfg.Deckd.ReconnectInterval == 0 {
		cfg.Deckd.ReconnectInterval = Duration(2 * time.Second)
	}
	if cfg.Deckd.HomePage == "" {
		cfg.Deckd.HomePage = "home"
	}
	if cfg.Deckd.SettleDelay == 0 {
		cfg.Deckd.SettleDelay = Duration(3 * time.Second)
	}
	if cfg.Deckd.StateRefreshInterval == 0 {
		cfg.Deckd.StateRefreshInterval = Duration(5 * time.Second)
	}

	// Style defaults
	d := &cfg.Deckd.Defaults
	if d.Background == "" {
		d.Background = "#1a1a2e"
	}
	if d.TextColor == "" {
		d.TextColor = "#e0e0e0"
	}
	if d.FontSize == 0 {
		d.FontSize = 14
	}
	if d.Font == "" {
		d.Font = "default"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Ledger defaults
	if cfg.Database.RetentionPeriod == 0 {
		cfg.Database.RetentionPeriod = Duration(30 * 24 * time.Hour)
	}
	if cfg.Database.CleanupInterval == 0 {
		cfg.Database.CleanupInterval = Duration(24 * time.Hour)
	}

	// Home Assistant defaults, environment first
	if cfg.HomeAssistant.URL == "" {
		cfg.HomeAssistant.URL = os.Getenv("HA_URL")
	}
	if cfg.HomeAssistant.URL == "" {
		cfg.HomeAssistant.URL = "http://homeassistant.local:8123"
	}
	cfg.HomeAssistant.URL = strings.TrimRight(cfg.HomeAssistant.URL, "/")
	if cfg.HomeAssistant.Token == "" {
		cfg.HomeAssistant.Token = os.Getenv("HA_TOKEN")
	}
	if cfg.HomeAssistant.Timeout == 0 {
		cfg.HomeAssistant.Timeout = Duration(3 * time.Second)
	}
	if cfg.HomeAssistant.RateLimitRPS == 0 {
		cfg.HomeAssistant.RateLimitRPS = 20.0
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "deckd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "deckd"
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks value ranges that the device cannot represent.
func Validate(cfg *Config) error {
	if b := cfg.Deckd.GetBrightness(); b < 0 || b > 100 {
		return &ValidationError{Field: "deckd.brightness", Reason: fmt.Sprintf("must be 0-100, got %d", b)}
	}
	if fs := cfg.Deckd.Defaults.FontSize; fs <= 0 || fs > MaxFontSize {
		return &ValidationError{Field: "deckd.defaults.font_size", Reason: fmt.Sprintf("must be above 0 and at most %d, got %g", MaxFontSize, fs)}
	}

	for pageID, page := range cfg.Pages {
		for i, button := range page.Buttons {
			if button.keyMissing {
				return &ValidationError{
					Page:   pageID,
					Field:  "key",
					Reason: fmt.Sprintf("button %d has no key", i),
				}
			}
			if button.FontSize < 0 || button.FontSize > MaxFontSize {
				return &ValidationError{
					Page:   pageID,
					Field:  "font_size",
					Reason: fmt.Sprintf("button key %d font_size %g out of range (0-%d)", button.Key, button.FontSize, MaxFontSize),
				}
			}
			if button.Key < 0 || button.Key > MaxKey {
				return &ValidationError{
					Page:   pageID,
					Field:  "key",
					Reason: fmt.Sprintf("button key %d out of range (0-%d)", button.Key, MaxKey),
				}
			}
		}
	}

	return nil
}

// warnDuplicateKeys logs keys defined more than once on a page. Only the first is reachable.
func warnDuplicateKeys(cfg *Config) {
	for pageID, page := range cfg.Pages {
		seen := make(map[int]bool, len(page.Buttons))
		for _, button := range page.Buttons {
			if seen[button.Key] {
				log.Warn().
					Str("page", pageID).
					Int("key", button.Key).
					Msg("Duplicate button key, only the first definition is used")
			}
			seen[button.Key] = true
		}
	}
}

// ButtonCount returns the total number of buttons across all pages
func (c *Config) ButtonCount() int {
	n := 0
	for _, page := range c.Pages {
		n += len(page.Buttons)
	}
	return n
}

// GetShutdownTimeout returns the shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
// Unset variables without a default are kept verbatim.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		if strings.Contains(match, ":") {
			return parts[2]
		}
		return match
	})
}
