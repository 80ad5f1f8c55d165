package app

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/charlesng35/estatehub/internal/database"
)

const (
	defaultBcryptCost  = 10
	minTokenBytes      = 16
	defaultTokenBytes  = 32
	defaultMongoDBName = "estatehub"
)

// ApplyRuntimeDefaults repairs settings that would otherwise make startup fail
// or weaken account security. It returns the keys that were changed so callers
// can log them.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	adjusted := make(map[string]bool)

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
		adjusted["server.port"] = true
	}

	local := &cfg.Auth.Local
	if local.BcryptCost < bcrypt.MinCost || local.BcryptCost > bcrypt.MaxCost {
		local.BcryptCost = defaultBcryptCost
		adjusted["auth.local.bcrypt_cost"] = true
	}
	if local.TokenBytes < minTokenBytes {
		local.TokenBytes = defaultTokenBytes
		adjusted["auth.local.token_bytes"] = true
	}

	driver := database.NormalizeDriver(cfg.Database.Driver)
	if driver == "mongo" {
		driver = "mongodb"
	}
	if driver != cfg.Database.Driver {
		cfg.Database.Driver = driver
		adjusted["database.driver"] = true
	}

	if driver == "mongodb" && strings.TrimSpace(cfg.Database.Mongo.Database) == "" {
		name, err := mongoDatabaseFromURI(cfg.Database.Mongo.URI)
		if err != nil {
			return nil, err
		}
		cfg.Database.Mongo.Database = name
		adjusted["database.mongo.database"] = true
	}

	return adjusted, nil
}

// mongoDatabaseFromURI returns the database named in the URI path, or the
// default name when the URI has none.
func mongoDatabaseFromURI(uri string) (string, error) {
	if strings.TrimSpace(uri) == "" {
		return defaultMongoDBName, nil
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse database.mongo.uri: %w", err)
	}
	if name := strings.Trim(parsed.Path, "/"); name != "" {
		return name, nil
	}
	return defaultMongoDBName, nil
}
