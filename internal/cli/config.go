package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/olsync/olsync"
)

// Config is read from olsync.yaml, OLSYNC_* environment variables and
// flags, in increasing precedence.
//
//	base_url: https://www.overleaf.com
//	identity:
//	  cookies: overleaf_session2=...
//	  csrf_token: ...
//	project: 5f0c...
type Config struct {
	olsync.Session `mapstructure:",squash"`

	// APIURL is the origin of the HTTP API when it is not BaseURL.
	APIURL  string `mapstructure:"api_url"`
	Project string `mapstructure:"project"`
	Codec   string `mapstructure:"codec"`
	Log     struct {
		File  string `mapstructure:"file"`
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

var configKeys = []string{
	"server_name",
	"base_url",
	"api_url",
	"user_id",
	"identity.cookies",
	"identity.csrf_token",
	"project",
	"codec",
	"log.file",
	"log.level",
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"server":    "base_url",
	"api":       "api_url",
	"project":   "project",
	"cookies":   "identity.cookies",
	"csrf":      "identity.csrf_token",
	"codec":     "codec",
	"log-file":  "log.file",
	"log-level": "log.level",
}

func loadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("server_name", "overleaf")
	v.SetDefault("codec", "json")
	v.SetDefault("log.level", "warn")

	v.SetEnvPrefix("OLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("olsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "olsync"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = cfg.BaseURL
	}
	return cfg, nil
}
