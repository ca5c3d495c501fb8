package session

import (
	"os"
	"strings"

	"github.com/matheus3301/wabot/internal/config"
)

const DefaultInstanceName = "main"

// EnvInstance names the environment variable consulted after the flag.
const EnvInstance = "WABOT_INSTANCE"

// Resolve picks the instance: the flag, then $WABOT_INSTANCE, then
// default_instance from config.toml, then "main". The result is not
// validated.
func Resolve(flagOverride string) string {
	return resolveFrom(flagOverride, ConfigPath())
}

func resolveFrom(flagOverride, configPath string) string {
	if name := strings.TrimSpace(flagOverride); name != "" {
		return name
	}
	if name := strings.TrimSpace(os.Getenv(EnvInstance)); name != "" {
		return name
	}
	if cfg, err := config.Load(configPath); err == nil && cfg.DefaultInstance != "" {
		return cfg.DefaultInstance
	}
	return DefaultInstanceName
}
