package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appEnvVar = "APP_ENV"

// Environment is the deployment environment named by APP_ENV.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

var environmentAliases = map[string]Environment{
	"dev":      EnvironmentDevelopment,
	"prod":     EnvironmentProduction,
	"stag":     EnvironmentStaging,
	"stagging": EnvironmentStaging,
}

// CurrentEnvironment reads APP_ENV, folding known aliases. An unset variable
// means development.
func CurrentEnvironment() Environment {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return EnvironmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return Environment(env)
}

func (e Environment) String() string {
	return string(e)
}

// ProductionLike reports whether the session talks to a live broker account.
// Such environments require TLS with certificate verification, since the
// CONNECT frame carries the signed identity.
func (e Environment) ProductionLike() bool {
	return e == EnvironmentProduction || e == EnvironmentStaging
}

// configFile returns the environment's variant of base, e.g. config.staging.yml.
// Development keeps base.
func (e Environment) configFile(base string) string {
	if !e.ProductionLike() {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + e.String() + ext
}

// ResolveConfigPath maps the default config.yml, or an empty path, to the
// current environment's file. Any other path is used as given.
func ResolveConfigPath(path string) string {
	const defaultPath = "config.yml"
	if path == "" {
		path = defaultPath
	}
	env := CurrentEnvironment()
	if path == defaultPath || path == env.configFile(defaultPath) {
		return env.configFile(defaultPath)
	}
	return path
}
