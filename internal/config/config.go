// Package config loads the SDK's configuration from a layered source
// (defaults < YAML file < environment), validates it, and exposes the
// typed Config consumed by the composition root.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
)

// LoginMode selects how internal/backend obtains its bearer token.
type LoginMode int

const (
	// LoginModeBearer treats APIToken as an already-valid,
	// externally-provisioned token; no login call is made.
	LoginModeBearer LoginMode = iota
	// LoginModeDemo performs the cookie-exchange /login + /access
	// flow using Email/Password.
	LoginModeDemo
)

// CryptoStorageKeyLen is the required length, in bytes, of
// CryptographyStorageKey.
const CryptoStorageKeyLen = 32

// DefaultAPIVersion is the API version targeted when none is
// configured (Open Question resolution, see SPEC_FULL.md §4.1).
const DefaultAPIVersion = "v9"

// Config is the SDK's full configuration surface (spec §6).
type Config struct {
	ApplicationID           string `koanf:"application_id"`
	UserID                  string `koanf:"user_id"`
	APIToken                string `koanf:"api_token"`
	APIHost                 string `koanf:"api_host"`
	APIVersion              string `koanf:"api_version"`
	CryptographyStorageKey  string `koanf:"cryptography_storage_key"`
	LoginMode               LoginMode `koanf:"-"`
	Email                   string `koanf:"email"`
	Password                string `koanf:"password"`
	Environment             string `koanf:"environment"`
	DefaultKeyPackageCount  int    `koanf:"default_keypackage_count"`
	MaxAssetDataSize        int64  `koanf:"max_asset_data_size"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api_version":              DefaultAPIVersion,
		"default_keypackage_count": 100,
		"max_asset_data_size":      int64(25 * 1024 * 1024),
	}
}

// Load builds a Config from defaults, an optional YAML file at path
// (skipped if path is empty; a non-empty path that cannot be read is
// an error), and the WIRE_SDK_* environment
// surface, in that precedence order (env overrides file overrides
// defaults).
func Load(yamlPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if yamlPath != "" {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", yamlPath, err)
		}
	}

	envProvider := env.Provider("WIRE_SDK_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "WIRE_SDK_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	c.LoginMode = LoginModeBearer
	if c.Email != "" && c.Password != "" {
		c.LoginMode = LoginModeDemo
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate enforces the required fields and the fixed
// CryptographyStorageKey length from spec §4.8/§6.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("config: WIRE_SDK_USER_ID is required")
	}
	if c.APIHost == "" {
		return fmt.Errorf("config: api_host is required")
	}
	if len(c.CryptographyStorageKey) != CryptoStorageKeyLen {
		return sdkerr.New(sdkerr.InvalidParameter, fmt.Sprintf(
			"cryptography_storage_key must be %d bytes, got %d",
			CryptoStorageKeyLen, len(c.CryptographyStorageKey)))
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	return nil
}
