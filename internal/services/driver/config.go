package driver

// Config is the flat credential/settings map a driver is constructed from.
type Config map[string]string

// Require fails fast with a ConfigError naming the first missing field.
func (c Config) Require(provider string, fields ...string) error {
	for _, field := range fields {
		if c[field] == "" {
			return &ConfigError{Provider: provider, Field: field}
		}
	}
	return nil
}

// Get returns the configured value or the given default.
func (c Config) Get(key, defaultValue string) string {
	if value, ok := c[key]; ok && value != "" {
		return value
	}
	return defaultValue
}
