// Package config resolves the service configuration from defaults, an
// optional YAML file, environment variables and CLI flags, each source
// overriding the previous one. The shipping section seeds the settings store
// used by the rate pipeline.
package config
