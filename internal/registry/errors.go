package registry

import "strings"

// ConfigError reports a registry definition that cannot be used: an alias
// claimed by two families, an unknown suffix, a malformed pattern, and so on.
// It is raised at load time, before any record is processed.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "registry: invalid definition: " + strings.Join(e.Problems, "; ")
}
