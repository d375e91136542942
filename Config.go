/*
File Name:  Config.go
Copyright:  2024 Cratenet s.r.o.
*/

package core

import (
	_ "embed" // Required for embedding the default config file
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the current core library version
const Version = "Alpha 2/14.03.2024"

// Config holds all settings of the node. It is loaded once from the YAML config file.
type Config struct {
	LogFile string `yaml:"LogFile"` // Log file

	// ProtocolVersion is the protocol identifier advertised to and expected from remote peers.
	// Peers advertising a different one are blocked. Set at load time, immutable afterwards.
	ProtocolVersion string `yaml:"ProtocolVersion"`

	// AgentVersion is the free-form agent string advertised to remote peers.
	AgentVersion string `yaml:"AgentVersion"`

	// User specific settings
	PrivateKey string `yaml:"PrivateKey"` // The Private Key, hex encoded so it can be copied manually

	// Initial peer seed list
	SeedList []peerSeed `yaml:"SeedList"`

	// Routing table settings
	BucketSize           int `yaml:"BucketSize"`           // Count of nodes per bucket. Default 20.
	ReplacementCacheSize int `yaml:"ReplacementCacheSize"` // Count of admission candidates kept per full bucket. Default 5.
	StaleSeconds         int `yaml:"StaleSeconds"`         // Seconds after which an unseen node is eligible for eviction. Default 600.

	// Reachability verification settings
	DialBackDelaySeconds int  `yaml:"DialBackDelaySeconds"` // Delay before a dial-back counts as proof of reachability. Default 180.
	DialConcurrency      int  `yaml:"DialConcurrency"`      // Max peers under reachability evaluation at the same time. Default 5.
	LocalMode            bool `yaml:"LocalMode"`            // Trusted local mode. Peers are admitted without dial-back verification.

	// NAT detection settings
	EnableUPnP bool `yaml:"EnableUPnP"` // Enables the UPnP/NAT-PMP gateway probe at startup.
	NatSamples int  `yaml:"NatSamples"` // Count of observed-address samples required for the NAT verdict. Default 5.

	// ListenPort is the local UDP port the transport listens on. It is the internal port for
	// gateway port mappings. 0 disables the gateway probe.
	ListenPort uint16 `yaml:"ListenPort"`

	// PortExternal specifies an external port that was manually forwarded by the user.
	// If set, it disables the UPnP probe.
	PortExternal uint16 `yaml:"PortExternal"`

	// Databases. Empty filenames select a non-persistent in-memory store.
	PeerStoreFile string `yaml:"PeerStoreFile"` // Verified peer cache
	BlacklistFile string `yaml:"BlacklistFile"` // Blocked peers
}

// peerSeed is a single peer entry from the config's seed list
type peerSeed struct {
	PublicKey string   `yaml:"PublicKey"` // Public key = peer ID. Hex encoded. Empty means the contact carries no identity and is skipped.
	Address   []string `yaml:"Address"`   // IP:Port
	Relayed   bool     `yaml:"Relayed"`   // Relayed/circuit contacts are never used for reachability bootstrap.
}

//go:embed "Config Default.yaml"
var defaultConfig []byte

// LoadConfig reads the YAML configuration file. If an error is returned, the application shall exit.
// Status: 0 = Unknown error checking config file, 1 = Error reading config file, 2 = Error parsing config file, 3 = Success
func LoadConfig(filename string) (config *Config, status int, err error) {
	var configData []byte

	// check if the file is non existent or empty
	stats, err := os.Stat(filename)
	if filename == "" || err != nil && os.IsNotExist(err) || err == nil && stats.Size() == 0 {
		configData = defaultConfig
	} else if err != nil {
		return nil, 0, err
	} else if configData, err = os.ReadFile(filename); err != nil {
		return nil, 1, err
	}

	config = &Config{}
	if err = yaml.Unmarshal(configData, config); err != nil {
		return nil, 2, err
	}

	config.applyDefaults()

	return config, 3, nil
}

// applyDefaults fills in any setting left empty or invalid in the config file.
func (config *Config) applyDefaults() {
	if config.ProtocolVersion == "" {
		config.ProtocolVersion = "cratenet/1"
	}
	if config.AgentVersion == "" {
		config.AgentVersion = "cratenet core " + Version
	}
	if config.BucketSize <= 0 {
		config.BucketSize = 20
	}
	if config.ReplacementCacheSize <= 0 {
		config.ReplacementCacheSize = 5
	}
	if config.StaleSeconds <= 0 {
		config.StaleSeconds = 600
	}
	if config.DialBackDelaySeconds <= 0 {
		config.DialBackDelaySeconds = 180
	}
	if config.DialConcurrency <= 0 {
		config.DialConcurrency = 5
	}
	if config.NatSamples <= 0 {
		config.NatSamples = 5
	}
	if config.PortExternal > 0 || config.ListenPort == 0 {
		config.EnableUPnP = false
	}
}

// StalePeriod returns the staleness timeout as a duration.
func (config *Config) StalePeriod() time.Duration {
	return time.Duration(config.StaleSeconds) * time.Second
}

// DialBackDelay returns the dial-back delay D as a duration.
func (config *Config) DialBackDelay() time.Duration {
	return time.Duration(config.DialBackDelaySeconds) * time.Second
}

// SaveConfig writes the current config back to the file it was loaded from.
func (backend *Backend) SaveConfig() {
	if backend.configFile == "" {
		return
	}

	data, err := yaml.Marshal(backend.Config)
	if err != nil {
		backend.LogError("SaveConfig", "marshalling config: %v\n", err.Error())
		return
	}

	if err := os.WriteFile(backend.configFile, data, 0644); err != nil {
		backend.LogError("SaveConfig", "writing config '%s': %v\n", backend.configFile, err.Error())
	}
}
