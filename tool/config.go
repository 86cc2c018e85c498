package tool

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/localsend-session/types"
)

const (
	DefaultPort     = 53317
	DefaultProtocol = "https"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	currentConfig types.AppConfig
	configMu      sync.RWMutex
)

func defaultConfig() types.AppConfig {
	return types.AppConfig{
		Alias:                    RandomAlias(),
		DeviceModel:              "linux",
		DeviceType:               "desktop",
		Fingerprint:              "", // will be set based on protocol
		Port:                     DefaultPort,
		Protocol:                 DefaultProtocol,
		DownloadFolder:           "downloads",
		AutoAccept:               false,
		ShowToken:                GenerateShortSessionID(),
		DecisionTimeoutSeconds:   0, // wait until the user decides or the sender gives up
		NegotiationRatePerMinute: 30,
	}
}

// generateRandomFingerprintForConfig generates a random 32-character fingerprint
func generateRandomFingerprintForConfig() string {
	return strings.ReplaceAll(GenerateRandomUUID(), "-", "")
}

// LoadConfig reads path (or ConfigPath), creating it with defaults when missing.
// In https mode the fingerprint is derived from the stored certificate and rewritten if it drifted.
func LoadConfig(path string) (types.AppConfig, error) {
	var configChanged bool
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := defaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			ensureFingerprint(&cfg)
			if writeErr := writeDefaultConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %w", writeErr)
			}
			DefaultLogger.Infof("Created new config file %s", path)
			SetCurrentConfig(cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
		configChanged = true
	}
	if cfg.Protocol != "http" && cfg.Protocol != "https" {
		DefaultLogger.Warnf("Unknown protocol %q in config, using %s", cfg.Protocol, DefaultProtocol)
		cfg.Protocol = DefaultProtocol
		configChanged = true
	}
	if cfg.ShowToken == "" {
		cfg.ShowToken = GenerateShortSessionID()
		configChanged = true
	}
	if ensureFingerprint(&cfg) {
		configChanged = true
	}

	if configChanged {
		if writeErr := writeDefaultConfig(path, cfg); writeErr != nil {
			DefaultLogger.Warnf("Failed to update config file: %v", writeErr)
		}
	}

	SetCurrentConfig(cfg)
	return cfg, nil
}

// ensureFingerprint fills or corrects cfg.Fingerprint and reports whether it changed.
func ensureFingerprint(cfg *types.AppConfig) bool {
	if cfg.Protocol == "https" {
		old := cfg.Fingerprint
		fp := IdentityFingerprint(cfg)
		if old != fp {
			DefaultLogger.Infof("Updating fingerprint to match TLS certificate: %q -> %s", old, fp)
			cfg.Fingerprint = fp
			return true
		}
		return false
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = generateRandomFingerprintForConfig()
		DefaultLogger.Infof("HTTP mode: generated random fingerprint")
		return true
	}
	return false
}

func writeDefaultConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func GetCurrentConfig() types.AppConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return currentConfig
}

func SetCurrentConfig(cfg types.AppConfig) {
	configMu.Lock()
	defer configMu.Unlock()
	currentConfig = cfg
}

// ApplyFlagOverrides merges CLI overrides into cfg. Zero values mean "not set".
func ApplyFlagOverrides(cfg *types.AppConfig, flags types.Config) {
	if flags.UseAlias != "" {
		cfg.Alias = flags.UseAlias
	}
	if flags.UseHttp {
		cfg.Protocol = "http"
	}
	if flags.UsePort > 0 {
		cfg.Port = flags.UsePort
	}
	if flags.UseDownloadDir != "" {
		cfg.DownloadFolder = flags.UseDownloadDir
	}
	if flags.UseAutoAccept {
		cfg.AutoAccept = true
	}
	if flags.UseShowToken != "" {
		cfg.ShowToken = flags.UseShowToken
	}
	if flags.UseNotifySocket != "" {
		cfg.NotifySocketPath = flags.UseNotifySocket
	}
	ensureFingerprint(cfg)
}

// SelfDevice builds the identity we advertise from the config.
func SelfDevice(cfg types.AppConfig) types.DeviceInfo {
	return types.DeviceInfo{
		Alias:       cfg.Alias,
		DeviceModel: cfg.DeviceModel,
		DeviceType:  cfg.DeviceType,
	}
}
