package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the VoiceGate server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir     string
	HTTPPort    int
	SIPPort     int
	RTPPortMin  int
	RTPPortMax  int
	ExternalIP  string // public IP for Contact/Via/SDP rewriting behind NAT
	LogLevel    string
	LogFormat   string // log output format: "text" or "json"
	CORSOrigins string

	// Upstream trunk registration.
	TrunkHost      string
	TrunkPort      int
	TrunkUser      string
	TrunkAuthUser  string // auth username when it differs from the AOR user
	TrunkPassword  string
	TrunkTransport string
	RegisterExpiry int

	// Realtime AI provider.
	AIAPIKey     string
	AIHost       string
	ModelMini    string
	ModelPremium string
	DefaultModel string // model key: "mini" or "premium"

	// Security gate and dashboard.
	AccessCode      string // unlock code, never sent to the model
	APIKey          string // X-API-Key for the dashboard API; empty disables auth
	FirewallEnabled bool
}

// defaults
const (
	defaultDataDir        = "./data"
	defaultHTTPPort       = 8080
	defaultSIPPort        = 5060
	defaultRTPPortMin     = 4000
	defaultRTPPortMax     = 4100
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultTrunkPort      = 5060
	defaultTransport      = "udp"
	defaultRegisterExpiry = 300
	defaultAIHost         = "api.openai.com"
	defaultModelMini      = "gpt-4o-mini-realtime-preview-2024-12-17"
	defaultModelPremium   = "gpt-realtime"
	defaultModelKey       = "mini"
	defaultAccessCode     = "7234"
)

// envPrefix is the prefix for all VoiceGate environment variables.
const envPrefix = "VOICEGATE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("voicegate", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the sqlite database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.IntVar(&cfg.SIPPort, "sip-port", defaultSIPPort, "SIP UDP listen port")
	fs.IntVar(&cfg.RTPPortMin, "rtp-port-min", defaultRTPPortMin, "minimum UDP port for RTP media")
	fs.IntVar(&cfg.RTPPortMax, "rtp-port-max", defaultRTPPortMax, "maximum UDP port for RTP media")
	fs.StringVar(&cfg.ExternalIP, "external-ip", "", "public IP address for SIP/SDP rewriting (auto-detected if empty)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")

	fs.StringVar(&cfg.TrunkHost, "trunk-host", "", "SIP trunk provider hostname (e.g. sipgate.de)")
	fs.IntVar(&cfg.TrunkPort, "trunk-port", defaultTrunkPort, "SIP trunk provider port")
	fs.StringVar(&cfg.TrunkUser, "trunk-user", "", "SIP trunk username (AOR user)")
	fs.StringVar(&cfg.TrunkAuthUser, "trunk-auth-user", "", "SIP trunk auth username if different from trunk-user")
	fs.StringVar(&cfg.TrunkPassword, "trunk-password", "", "SIP trunk password")
	fs.StringVar(&cfg.TrunkTransport, "trunk-transport", defaultTransport, "SIP transport to the trunk (udp, tcp)")
	fs.IntVar(&cfg.RegisterExpiry, "register-expiry", defaultRegisterExpiry, "REGISTER expiry in seconds")

	fs.StringVar(&cfg.AIAPIKey, "ai-api-key", "", "API key for the realtime AI provider")
	fs.StringVar(&cfg.AIHost, "ai-host", defaultAIHost, "realtime AI provider hostname")
	fs.StringVar(&cfg.ModelMini, "model-mini", defaultModelMini, "model id for the \"mini\" model key")
	fs.StringVar(&cfg.ModelPremium, "model-premium", defaultModelPremium, "model id for the \"premium\" model key")
	fs.StringVar(&cfg.DefaultModel, "default-model", defaultModelKey, "model key used at call start (mini, premium)")

	fs.StringVar(&cfg.AccessCode, "access-code", defaultAccessCode, "numeric unlock code for the security gate")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key required for the dashboard API (empty disables auth)")
	fs.BoolVar(&cfg.FirewallEnabled, "firewall-enabled", true, "enable the trunk IP firewall for inbound INVITEs")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":         envPrefix + "DATA_DIR",
		"http-port":        envPrefix + "HTTP_PORT",
		"sip-port":         envPrefix + "SIP_PORT",
		"rtp-port-min":     envPrefix + "RTP_PORT_MIN",
		"rtp-port-max":     envPrefix + "RTP_PORT_MAX",
		"external-ip":      envPrefix + "EXTERNAL_IP",
		"log-level":        envPrefix + "LOG_LEVEL",
		"log-format":       envPrefix + "LOG_FORMAT",
		"cors-origins":     envPrefix + "CORS_ORIGINS",
		"trunk-host":       envPrefix + "TRUNK_HOST",
		"trunk-port":       envPrefix + "TRUNK_PORT",
		"trunk-user":       envPrefix + "TRUNK_USER",
		"trunk-auth-user":  envPrefix + "TRUNK_AUTH_USER",
		"trunk-password":   envPrefix + "TRUNK_PASSWORD",
		"trunk-transport":  envPrefix + "TRUNK_TRANSPORT",
		"register-expiry":  envPrefix + "REGISTER_EXPIRY",
		"ai-api-key":       envPrefix + "AI_API_KEY",
		"ai-host":          envPrefix + "AI_HOST",
		"model-mini":       envPrefix + "MODEL_MINI",
		"model-premium":    envPrefix + "MODEL_PREMIUM",
		"default-model":    envPrefix + "DEFAULT_MODEL",
		"access-code":      envPrefix + "ACCESS_CODE",
		"api-key":          envPrefix + "API_KEY",
		"firewall-enabled": envPrefix + "FIREWALL_ENABLED",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "sip-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SIPPort = v
			}
		case "rtp-port-min":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMin = v
			}
		case "rtp-port-max":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMax = v
			}
		case "external-ip":
			cfg.ExternalIP = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "trunk-host":
			cfg.TrunkHost = val
		case "trunk-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.TrunkPort = v
			}
		case "trunk-user":
			cfg.TrunkUser = val
		case "trunk-auth-user":
			cfg.TrunkAuthUser = val
		case "trunk-password":
			cfg.TrunkPassword = val
		case "trunk-transport":
			cfg.TrunkTransport = val
		case "register-expiry":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RegisterExpiry = v
			}
		case "ai-api-key":
			cfg.AIAPIKey = val
		case "ai-host":
			cfg.AIHost = val
		case "model-mini":
			cfg.ModelMini = val
		case "model-premium":
			cfg.ModelPremium = val
		case "default-model":
			cfg.DefaultModel = val
		case "access-code":
			cfg.AccessCode = val
		case "api-key":
			cfg.APIKey = val
		case "firewall-enabled":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.FirewallEnabled = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.SIPPort < 1 || c.SIPPort > 65535 {
		return fmt.Errorf("sip-port must be between 1 and 65535, got %d", c.SIPPort)
	}
	if c.RTPPortMin < 1024 || c.RTPPortMin > 65534 {
		return fmt.Errorf("rtp-port-min must be between 1024 and 65534, got %d", c.RTPPortMin)
	}
	if c.RTPPortMax < c.RTPPortMin+2 || c.RTPPortMax > 65535 {
		return fmt.Errorf("rtp-port-max must be between rtp-port-min+2 and 65535, got %d", c.RTPPortMax)
	}
	// RTP ports must be even (RTP uses even ports, RTCP uses the next odd port).
	if c.RTPPortMin%2 != 0 {
		return fmt.Errorf("rtp-port-min must be even, got %d", c.RTPPortMin)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	validTransports := map[string]bool{"udp": true, "tcp": true}
	if !validTransports[strings.ToLower(c.TrunkTransport)] {
		return fmt.Errorf("trunk-transport must be udp or tcp, got %q", c.TrunkTransport)
	}
	c.TrunkTransport = strings.ToLower(c.TrunkTransport)

	if c.TrunkPort < 1 || c.TrunkPort > 65535 {
		return fmt.Errorf("trunk-port must be between 1 and 65535, got %d", c.TrunkPort)
	}
	if c.RegisterExpiry < 60 {
		return fmt.Errorf("register-expiry must be at least 60 seconds, got %d", c.RegisterExpiry)
	}

	if c.DefaultModel != "mini" && c.DefaultModel != "premium" {
		return fmt.Errorf("default-model must be mini or premium, got %q", c.DefaultModel)
	}

	if c.AccessCode == "" {
		return fmt.Errorf("access-code must not be empty")
	}

	return nil
}

// ModelID resolves a model key ("mini", "premium") to the configured model id.
// Unknown keys fall back to the mini model.
func (c *Config) ModelID(key string) string {
	if key == "premium" {
		return c.ModelPremium
	}
	return c.ModelMini
}

// MediaIP returns the IP address to advertise in SDP and SIP headers.
// If ExternalIP is configured, it is returned directly. Otherwise the
// function attempts to detect the machine's primary non-loopback IPv4 address.
// Falls back to "127.0.0.1" if detection fails.
func (c *Config) MediaIP() string {
	if c.ExternalIP != "" {
		return c.ExternalIP
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
