package tool

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/moyoez/localsend-session/types"
)

const envPrefix = "LOCALSEND_"

// LoadDotEnv loads .env files into the process environment. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

type getenv struct {
	errs []error
}

func (ge *getenv) Err() error {
	return errors.Join(ge.errs...)
}

func (ge *getenv) String(key string, dst *string) {
	if s, ok := os.LookupEnv(envPrefix + key); ok && s != "" {
		*dst = s
	}
}

func (ge *getenv) Int(key string, dst *int) {
	s, ok := os.LookupEnv(envPrefix + key)
	if !ok || s == "" {
		return
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		ge.errs = append(ge.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return
	}
	*dst = v
}

func (ge *getenv) Bool(key string, dst *bool) {
	s, ok := os.LookupEnv(envPrefix + key)
	if !ok || s == "" {
		return
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		ge.errs = append(ge.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return
	}
	*dst = v
}

// ApplyEnvOverrides overrides cfg from LOCALSEND_* variables.
func ApplyEnvOverrides(cfg *types.AppConfig) error {
	var ge getenv
	ge.String("ALIAS", &cfg.Alias)
	ge.String("DEVICE_MODEL", &cfg.DeviceModel)
	ge.String("DEVICE_TYPE", &cfg.DeviceType)
	ge.String("PROTOCOL", &cfg.Protocol)
	ge.Int("PORT", &cfg.Port)
	ge.String("DOWNLOAD_FOLDER", &cfg.DownloadFolder)
	ge.Bool("AUTO_ACCEPT", &cfg.AutoAccept)
	ge.String("SHOW_TOKEN", &cfg.ShowToken)
	ge.Int("DECISION_TIMEOUT", &cfg.DecisionTimeoutSeconds)
	ge.String("NOTIFY_SOCKET", &cfg.NotifySocketPath)
	ge.Int("NEGOTIATION_RATE", &cfg.NegotiationRatePerMinute)
	return ge.Err()
}
