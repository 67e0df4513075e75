// Package config handles configuration loading: YAML parsing, environment
// variable expansion, and env-var overrides, collapsed to a single
// instance config (the proxy has no per-domain configuration split).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the YAML file at path (expanding ${VAR} / ${VAR:default}
// tokens first), merges it over Defaults(), and applies environment
// overrides via viper's AutomaticEnv with a "."->"_" key replacer.
//
// Example: FRLPROXY_HTTP_PORT=9090 overrides http.port. Only keys present
// in the YAML file are overridden this way; the environment is not
// consulted for keys the file omits.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FRLPROXY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	content, err := readExpanded(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	return &cfg, nil
}

// readExpanded loads the file at the first existing candidate path
// (explicit path, then climbing one level for test harnesses, then the
// bare filename in the working directory) and expands ${VAR}/${VAR:def}
// references against the process environment.
func readExpanded(path string) (string, error) {
	actual := findPath(path)
	raw, err := os.ReadFile(actual)
	if err != nil {
		return "", err
	}
	return os.Expand(string(raw), func(token string) string {
		parts := strings.SplitN(token, ":", 2)
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		if len(parts) > 1 {
			return parts[1]
		}
		return ""
	}), nil
}

func findPath(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if climbed := "../../" + path; fileExists(climbed) {
		return climbed
	}
	parts := strings.Split(path, "/")
	flat := parts[len(parts)-1]
	if fileExists(flat) {
		return flat
	}
	return path
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
