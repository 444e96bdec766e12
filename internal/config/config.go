package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// EnvConfigPath is the environment variable for config file path.
	EnvConfigPath = "DMG_CONFIG"
	// EnvProfile is the environment variable for profile name.
	EnvProfile = "DMG_PROFILE"
)

// EffectiveConfig holds the merged configuration (defaults + config file + profile).
type EffectiveConfig struct {
	SavePath       string `mapstructure:"save_path" json:"save_path"`
	CredentialFile string `mapstructure:"credential_file" json:"credential_file"`
	Helper         string `mapstructure:"helper" json:"helper"`
	APIHost        string `mapstructure:"api_host" json:"api_host"`
	AuditLog       string `mapstructure:"audit_log" json:"audit_log"`
	RemoveOld      bool   `mapstructure:"remove_old" json:"remove_old"`
	SharedInstall  bool   `mapstructure:"shared_install" json:"shared_install"`
	Mirror         string `mapstructure:"mirror" json:"mirror,omitempty"`
	AzureAccount   string `mapstructure:"azure_account" json:"azure_account,omitempty"`
}

// DefaultEffective returns the built-in default effective config.
func DefaultEffective() EffectiveConfig {
	return EffectiveConfig{
		SavePath:       ".",
		CredentialFile: "refresh_tokens.json",
		Helper:         "dmg-helper",
		APIHost:        "Public",
	}
}

// Load reads config from the given path (or discovers it), applies the given profile, and returns the result.
// Config path: if path is non-empty it is used; else DMG_CONFIG; else ~/.dmg.yaml, ./.dmg.yaml (first found).
// Profile: if profile is non-empty it is used; else DMG_PROFILE; else no profile.
// Precedence for final values: caller layers CLI flags on top; this returns file-based effective config.
func Load(configPath, profile string) (*EffectiveConfig, error) {
	base := DefaultEffective()

	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}
	if profile == "" {
		profile = os.Getenv(EnvProfile)
	}

	if configPath != "" {
		if err := readAndMerge(configPath, profile, &base); err != nil {
			return nil, err
		}
	} else {
		home, _ := os.UserHomeDir()
		candidates := []string{}
		if home != "" {
			candidates = append(candidates, filepath.Join(home, ".dmg.yaml"), filepath.Join(home, ".dmg.yml"))
		}
		wd, _ := os.Getwd()
		if wd != "" {
			candidates = append(candidates, filepath.Join(wd, ".dmg.yaml"), filepath.Join(wd, ".dmg.yml"))
		}
		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				if err := readAndMerge(p, profile, &base); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	return &base, nil
}

// readAndMerge reads one config file and merges it (and optional profile) into base.
func readAndMerge(path, profile string, base *EffectiveConfig) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		// Config file optional: missing file is not an error (viper may return *fs.PathError when using SetConfigFile).
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && errors.Is(pathErr.Err, fs.ErrNotExist) {
			return nil
		}
		if errors.As(err, new(viper.ConfigFileNotFoundError)) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	applyStringMap := func(get func(string) (any, bool)) {
		if s, ok := get("save_path"); ok {
			if v, ok := s.(string); ok && v != "" {
				base.SavePath = v
			}
		}
		if s, ok := get("credential_file"); ok {
			if v, ok := s.(string); ok && v != "" {
				base.CredentialFile = v
			}
		}
		if s, ok := get("helper"); ok {
			if v, ok := s.(string); ok && v != "" {
				base.Helper = v
			}
		}
		if s, ok := get("api_host"); ok {
			if v, ok := s.(string); ok && v != "" {
				base.APIHost = v
			}
		}
		if s, ok := get("audit_log"); ok {
			if v, ok := s.(string); ok && v != "" {
				base.AuditLog = v
			}
		}
		if s, ok := get("remove_old"); ok {
			if v, ok := s.(bool); ok {
				base.RemoveOld = v
			}
		}
		if s, ok := get("shared_install"); ok {
			if v, ok := s.(bool); ok {
				base.SharedInstall = v
			}
		}
		if s, ok := get("mirror"); ok {
			if v, ok := s.(string); ok && v != "" {
				base.Mirror = v
			}
		}
		if s, ok := get("azure_account"); ok {
			if v, ok := s.(string); ok && v != "" {
				base.AzureAccount = v
			}
		}
	}

	// Root keys.
	applyStringMap(func(key string) (any, bool) {
		if v.IsSet(key) {
			return v.Get(key), true
		}
		return nil, false
	})

	// Profile overrides.
	if profile != "" && v.IsSet("profiles") {
		profiles := v.GetStringMap("profiles")
		if p, ok := profiles[profile].(map[string]interface{}); ok {
			applyStringMap(func(key string) (any, bool) {
				val, ok := p[key]
				return val, ok
			})
		}
	}

	return nil
}
