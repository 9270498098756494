// Package config loads the service configuration from environment
// variables and validates it once at construction. The loaded Config is
// read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/vstruct/vstruct/internal/structure"
)

// Environment variable names. The prepopulation variables keep their
// historical names; the rest carry the VST_ prefix.
const (
	envAdapterActive     = "VST_ADAPTER_ACTIVE"
	envPrepopulate       = "PREPOPULATE_VST_ADAPTER_AT_STARTUP"
	envPrepopulateFile   = "PREPOPULATE_VST_ADAPTER_VIA_FILE"
	envOverwriteExisting = "COMPLETELY_OVERWRITE_EXISTING_VIRTUAL_STRUCTURE_AT_STARTUP"
	envStructureFilePath = "STRUCTURE_FILEPATH_TO_PREPOPULATE_VST_ADAPTER"
	envStructureInline   = "STRUCTURE_TO_PREPOPULATE_VST_ADAPTER"
	envMaintenanceSecret = "MAINTENANCE_SECRET"
	envListenAddr        = "VST_LISTEN_ADDR"
	envPathPrefix        = "VST_ADAPTER_PATH_PREFIX"
	envDBDialect         = "VST_DB_DIALECT"
	envDBDSN             = "VST_DB_DSN"
	envAdapterBaseURL    = "VST_ADAPTER_BASE_URL"
	envTLSVerify         = "VST_ADAPTER_TLS_VERIFY"
	envRequestTimeout    = "VST_ADAPTER_REQUEST_TIMEOUT"
)

// Config is the full service configuration.
type Config struct {
	// AdapterActive switches the whole adapter on. With the flag off the
	// serve command exits immediately.
	AdapterActive bool

	// Prepopulation settings, see the Validate rules.
	PrepopulateAtStartup bool
	PrepopulateViaFile   bool
	OverwriteExisting    bool
	StructureFilePath    string
	Structure            *structure.CompleteStructure

	// MaintenanceSecret guards the maintenance API. An empty secret
	// disables the maintenance routes.
	MaintenanceSecret string

	ListenAddr string
	// PathPrefix is the URL prefix of the adapter frontend.
	PathPrefix string

	DBDialect string
	DBDSN     string

	// Settings for downstream adapter calls made by collaborators.
	AdapterBaseURL string
	TLSVerify      bool
	RequestTimeout time.Duration
}

// Load reads the configuration from the environment, applies defaults
// and validates it.
func Load() (*Config, error) {
	v := viper.New()
	for _, name := range []string{
		envAdapterActive, envPrepopulate, envPrepopulateFile, envOverwriteExisting,
		envStructureFilePath, envStructureInline, envMaintenanceSecret,
		envListenAddr, envPathPrefix, envDBDialect, envDBDSN,
		envAdapterBaseURL, envTLSVerify, envRequestTimeout,
	} {
		if err := v.BindEnv(name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	v.SetDefault(envAdapterActive, true)
	v.SetDefault(envPrepopulate, false)
	v.SetDefault(envPrepopulateFile, false)
	v.SetDefault(envOverwriteExisting, false)
	v.SetDefault(envListenAddr, ":8090")
	v.SetDefault(envPathPrefix, "/adapters/virtual_structure")
	v.SetDefault(envDBDialect, "sqlite")
	v.SetDefault(envDBDSN, "vstruct.db")
	v.SetDefault(envTLSVerify, true)
	v.SetDefault(envRequestTimeout, "30s")

	cfg := &Config{
		AdapterActive:        v.GetBool(envAdapterActive),
		PrepopulateAtStartup: v.GetBool(envPrepopulate),
		PrepopulateViaFile:   v.GetBool(envPrepopulateFile),
		OverwriteExisting:    v.GetBool(envOverwriteExisting),
		StructureFilePath:    v.GetString(envStructureFilePath),
		MaintenanceSecret:    v.GetString(envMaintenanceSecret),
		ListenAddr:           v.GetString(envListenAddr),
		PathPrefix:           v.GetString(envPathPrefix),
		DBDialect:            v.GetString(envDBDialect),
		DBDSN:                v.GetString(envDBDSN),
		AdapterBaseURL:       v.GetString(envAdapterBaseURL),
		TLSVerify:            v.GetBool(envTLSVerify),
		RequestTimeout:       v.GetDuration(envRequestTimeout),
	}

	if raw := v.GetString(envStructureInline); raw != "" {
		cs, err := structure.Parse([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", envStructureInline, err)
		}
		cfg.Structure = cs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the prepopulation consistency rules.
func (c *Config) Validate() error {
	if c.PrepopulateViaFile && c.StructureFilePath == "" {
		return errors.New(
			"populating the virtual structure adapter via a file requires " +
				envStructureFilePath + " to be set")
	}
	if c.PrepopulateAtStartup && !c.PrepopulateViaFile && c.Structure == nil {
		return errors.New(
			"prepopulating the virtual structure adapter requires a structure in " +
				envStructureInline + " when no file is configured")
	}
	if c.PrepopulateViaFile && c.Structure != nil {
		return errors.New(
			envStructureInline + " must not be set when populating via a file")
	}
	return nil
}
