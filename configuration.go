/*
Copyright 2024 batisdev

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package batis

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// CacheScope controls the lifetime of the executor's local cache.
type CacheScope string

const (
	// CacheScopeSession keeps cached results for the whole session, until a
	// write, flush, commit or rollback clears them.
	CacheScopeSession CacheScope = "session"

	// CacheScopeStatement additionally clears the cache at the end of each
	// top-level query.
	CacheScopeStatement CacheScope = "statement"
)

// Settings are the engine-level options, loaded from a YAML document.
type Settings struct {
	// Environment identifies the datasource; it participates in cache keys.
	Environment string `yaml:"environment"`

	// Dialect names the registered database dialect.
	Dialect string `yaml:"dialect"`

	// LocalCacheScope is session or statement.
	LocalCacheScope CacheScope `yaml:"localCacheScope"`

	// Debug enables the debug interceptor's per-statement logging.
	Debug bool `yaml:"debug"`

	// StrictExpressions makes unresolved names fail expression evaluation
	// instead of resolving to null.
	StrictExpressions bool `yaml:"strictExpressions"`

	// QueryTimeout bounds each session's driver calls. Zero means no bound.
	QueryTimeout Duration `yaml:"queryTimeout"`
}

// Duration parses YAML duration strings ("250ms", "5s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("batis: malformed duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library form.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultSettings returns the settings used when no document is supplied.
func DefaultSettings() Settings {
	return Settings{
		Environment:     "default",
		Dialect:         "mysql",
		LocalCacheScope: CacheScopeSession,
	}
}

// LoadSettings reads a YAML settings document.
func LoadSettings(r io.Reader) (Settings, error) {
	settings := DefaultSettings()
	raw, err := io.ReadAll(r)
	if err != nil {
		return settings, err
	}
	if err = yaml.Unmarshal(raw, &settings); err != nil {
		return settings, fmt.Errorf("batis: malformed settings: %w", err)
	}
	switch settings.LocalCacheScope {
	case CacheScopeSession, CacheScopeStatement:
	default:
		return settings, fmt.Errorf("batis: unknown localCacheScope %q", settings.LocalCacheScope)
	}
	return settings, nil
}

// LoadSettingsFile reads a YAML settings document from disk.
func LoadSettingsFile(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultSettings(), err
	}
	defer func() { _ = f.Close() }()
	return LoadSettings(f)
}

// Configuration aggregates everything a session needs: settings, registered
// mappers, the type-converter registry and the object factory.
type Configuration struct {
	Settings   Settings
	Mappers    *Mappers
	Converters *ConverterRegistry
	Factory    ObjectFactory
}

// NewConfiguration builds a configuration with default collaborators.
func NewConfiguration(settings Settings) *Configuration {
	mappers := NewMappers()
	mappers.SetStrictExpressions(settings.StrictExpressions)
	return &Configuration{
		Settings:   settings,
		Mappers:    mappers,
		Converters: DefaultConverters(),
		Factory:    defaultObjectFactory{},
	}
}

// Statement resolves a registered statement by its namespaced name.
func (c *Configuration) Statement(name string) (*MappedStatement, error) {
	return c.Mappers.Statement(name)
}
