package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Places.APIKey) == "" {
		return fmt.Errorf("places.api_key is required")
	}
	if c.Places.Timeout <= 0 {
		return fmt.Errorf("places.timeout must be > 0 (got %v)", c.Places.Timeout)
	}
	if c.Places.CacheTTL < 0 {
		return fmt.Errorf("places.cache_ttl must be >= 0 (got %v)", c.Places.CacheTTL)
	}

	switch c.Store.Backend {
	case BackendEmbedded:
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for the embedded backend")
		}
	case BackendRemote:
		if c.Store.RemoteAddr == "" {
			return fmt.Errorf("store.remote_addr is required for the remote backend")
		}
	case BackendFirestore:
		if c.Store.ProjectID == "" {
			return fmt.Errorf("store.project_id is required for the firestore backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of %s, %s, %s (got %q)",
			BackendEmbedded, BackendRemote, BackendFirestore, c.Store.Backend)
	}

	if strings.Contains(c.Trigger.Collection, "/") || c.Trigger.Collection == "" {
		return fmt.Errorf("trigger.collection must be a top-level collection name (got %q)", c.Trigger.Collection)
	}
	if c.Trigger.Buffer <= 0 {
		return fmt.Errorf("trigger.buffer must be > 0 (got %d)", c.Trigger.Buffer)
	}

	return nil
}
