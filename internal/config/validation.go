package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes is ValidateFile for an in-memory document
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersion)
	} else if version != SupportedVersion {
		result.addError("version", "unsupported version '%s' - use '%s'", version, SupportedVersion)
	}

	validateBridgeStructure(rawConfig, result)
	validateProviderStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result
}

func validateBridgeStructure(rawConfig map[string]any, result *ValidationResult) {
	bridge, ok := rawConfig["bridge"].(map[string]any)
	if !ok {
		result.addError("bridge", "bridge field is required and must be an object")
		return
	}
	if _, ok := bridge["origin"]; !ok {
		result.addError("bridge.origin", "origin is required. Hint: the dashboard's scheme://host[:port]")
	}
	if _, ok := bridge["addr"]; !ok {
		result.addError("bridge.addr", "addr is required (e.g. \":8080\")")
	}
	if secret, ok := bridge["signingSecret"]; !ok {
		result.addError("bridge.signingSecret", "signingSecret is required. Hint: Must be at least 32 bytes long")
	} else if err := validateEnvVarReference(secret, "signingSecret", "bridge.signingSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
}

func validateProviderStructure(rawConfig map[string]any, result *ValidationResult) {
	provider, ok := rawConfig["provider"].(map[string]any)
	if !ok {
		result.addError("provider", "provider field is required and must be an object")
		return
	}
	if kind, ok := provider["kind"].(string); ok {
		switch ProviderKind(kind) {
		case ProviderGitHub, ProviderGoogle, ProviderOIDC, ProviderAzure:
		default:
			result.addError("provider.kind", "unknown provider kind '%s' - use one of github, google, oidc, azure", kind)
		}
	}
	for _, field := range []string{"clientId", "redirectUri"} {
		if _, ok := provider[field]; !ok {
			result.addError("provider."+field, "%s is required", field)
		}
	}
	if secret, ok := provider["clientSecret"]; !ok {
		result.addError("provider.clientSecret", "clientSecret is required")
	} else if err := validateEnvVarReference(secret, "clientSecret", "provider.clientSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}
	kind, _ := storage["kind"].(string)
	required := map[string]string{
		string(StorageRedis):     "redisAddr",
		string(StorageSQLite):    "sqlitePath",
		string(StorageFirestore): "gcpProject",
	}
	switch kind {
	case "", string(StorageMemory):
		return
	case string(StorageRedis), string(StorageSQLite), string(StorageFirestore):
		field := required[kind]
		if _, ok := storage[field]; !ok {
			result.addError("storage."+field, "%s is required when using %s storage", field, kind)
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - use memory, redis, sqlite or firestore", kind)
	}
	if password, ok := storage["redisPassword"]; ok {
		if err := validateEnvVarReference(password, "redisPassword", "storage.redisPassword"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}
}

// validateEnvVarReference checks that a secret is written as {"$env": "VAR"}
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively warns about $VAR / ${VAR} in plain strings
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.Warnings = append(result.Warnings, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName),
			})
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
