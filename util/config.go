package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const Name = "federatoad"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

// ConfStruct holds every runtime option, ambient and federation-specific
// alike. yaml tags are only needed where the Go field name doesn't already
// match the lowerCamelCase key used in config.yaml.
type ConfStruct struct {
	Host            string
	SshPort         int    `yaml:"sshPort"`
	HttpPort        int    `yaml:"httpPort"`
	SslDomain       string `yaml:"sslDomain"`
	WithAp          bool   `yaml:"withAp"`
	Single          bool   `yaml:"single"`
	Closed          bool   `yaml:"closed"`
	NodeDescription string `yaml:"nodeDescription"`
	WithJournald    bool   `yaml:"withJournald"`
	WithPprof       bool   `yaml:"withPprof"`
	MaxChars        int    `yaml:"maxChars"`
	ShowGlobal      bool   `yaml:"showGlobal"`
	SshOnly         bool   `yaml:"sshOnly"`
	ShowTos         bool   `yaml:"showTos"`

	// Federation options.
	FederationEnabled            bool   `yaml:"federationEnabled"`
	AutoApproveFollows           bool   `yaml:"autoApproveFollows"`
	SignatureVerificationEnabled bool   `yaml:"signatureVerificationEnabled"`
	MaxDeliveryRetries           int    `yaml:"maxDeliveryRetries"`
	FederationTimeoutSeconds     int    `yaml:"federationTimeoutSeconds"`
	ActorKeyCacheTtlMinutes      int    `yaml:"actorKeyCacheTtlMinutes"`
	DefaultVisibility            string `yaml:"defaultVisibility"`
}

// FederationTimeout is FederationTimeoutSeconds as a time.Duration,
// defaulting to 10s when unset.
func (c ConfStruct) FederationTimeout() time.Duration {
	if c.FederationTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.FederationTimeoutSeconds) * time.Second
}

// ActorKeyCacheTTL is ActorKeyCacheTtlMinutes as a time.Duration,
// defaulting to 1h when unset.
func (c ConfStruct) ActorKeyCacheTTL() time.Duration {
	if c.ActorKeyCacheTtlMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.ActorKeyCacheTtlMinutes) * time.Minute
}

type AppConfig struct {
	Conf ConfStruct
}

// ReadConf loads config.yaml, falling back to the embedded default when no
// file is found on disk, then applies STEGODON_* environment overrides.
func ReadConf() (*AppConfig, error) {
	c := &AppConfig{}

	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		if configDir, dirErr := GetConfigDir(); dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnvOverrides(c)

	if c.Conf.MaxChars == 0 {
		c.Conf.MaxChars = 150
	} else if c.Conf.MaxChars > 300 {
		log.Printf("maxChars value %d in config exceeds maximum of 300, capping at 300", c.Conf.MaxChars)
		c.Conf.MaxChars = 300
	} else if c.Conf.MaxChars < 1 {
		log.Printf("maxChars value %d in config is less than minimum of 1, setting to default 150", c.Conf.MaxChars)
		c.Conf.MaxChars = 150
	}

	if c.Conf.MaxDeliveryRetries == 0 {
		c.Conf.MaxDeliveryRetries = 5
	}
	if c.Conf.DefaultVisibility == "" {
		c.Conf.DefaultVisibility = "public"
	}

	return c, nil
}

func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("STEGODON_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("STEGODON_SSHPORT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("Error parsing STEGODON_SSHPORT: %v", err)
		} else {
			c.Conf.SshPort = n
		}
	}
	if v := os.Getenv("STEGODON_HTTPPORT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("Error parsing STEGODON_HTTPPORT: %v", err)
		} else {
			c.Conf.HttpPort = n
		}
	}
	if v := os.Getenv("STEGODON_SSLDOMAIN"); v != "" {
		c.Conf.SslDomain = v
	}
	if os.Getenv("STEGODON_WITH_AP") == "true" {
		c.Conf.WithAp = true
	}
	if os.Getenv("STEGODON_SINGLE") == "true" {
		c.Conf.Single = true
	}
	if os.Getenv("STEGODON_CLOSED") == "true" {
		c.Conf.Closed = true
	}
	if v := os.Getenv("STEGODON_NODE_DESCRIPTION"); v != "" {
		c.Conf.NodeDescription = v
	}
	if os.Getenv("STEGODON_WITH_JOURNALD") == "true" {
		c.Conf.WithJournald = true
	}
	if os.Getenv("STEGODON_WITH_PPROF") == "true" {
		c.Conf.WithPprof = true
	}
	if os.Getenv("STEGODON_SHOW_GLOBAL") == "true" {
		c.Conf.ShowGlobal = true
	}
	if os.Getenv("STEGODON_SSH_ONLY") == "true" {
		c.Conf.SshOnly = true
	}
	if os.Getenv("STEGODON_SHOW_TOS") == "true" {
		c.Conf.ShowTos = true
	}
	if v := os.Getenv("STEGODON_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("Error parsing STEGODON_MAX_CHARS: %v", err)
		} else if n > 300 {
			log.Printf("STEGODON_MAX_CHARS value %d exceeds maximum of 300, capping at 300", n)
			c.Conf.MaxChars = 300
		} else if n < 1 {
			log.Printf("STEGODON_MAX_CHARS value %d is less than minimum of 1, setting to default 150", n)
			c.Conf.MaxChars = 150
		} else {
			c.Conf.MaxChars = n
		}
	}
	if os.Getenv("STEGODON_AUTO_APPROVE_FOLLOWS") == "false" {
		c.Conf.AutoApproveFollows = false
	}
}
