package config

import (
	"os"
	"strings"
)

// ProviderKeyEnvVar derives the environment variable that holds upstream API
// keys for a provider, e.g. "together.ai" -> "TOGETHER_AI_API_KEY".
func ProviderKeyEnvVar(providerID string) string {
	name := strings.ToUpper(providerID)
	name = strings.NewReplacer(".", "_", "-", "_").Replace(name)
	return name + "_API_KEY"
}

// ProviderKeys returns the configured upstream keys for a provider. The env
// var holds a comma-separated list; each entry gets a stable key index so the
// health tracker can blame individual credentials.
func ProviderKeys(providerID string) (envVar string, keys []string) {
	envVar = ProviderKeyEnvVar(providerID)
	raw := os.Getenv(envVar)
	if raw == "" {
		return envVar, nil
	}
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return envVar, keys
}

// ProviderBaseURL returns the caller-configured base URL for a custom
// upstream, e.g. "myproxy" -> $MYPROXY_BASE_URL. Empty when unset.
func ProviderBaseURL(providerID string) string {
	name := strings.ToUpper(providerID)
	name = strings.NewReplacer(".", "_", "-", "_").Replace(name)
	return os.Getenv(name + "_BASE_URL")
}
