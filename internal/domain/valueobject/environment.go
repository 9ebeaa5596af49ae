package valueobject

import "strings"

// Environment is the runtime classification the service performs exactly once
// at startup. Individual operations must consume the classified value and
// never re-check environment flags themselves.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvSandbox    Environment = "sandbox"
	EnvDevRuntime Environment = "development"
	EnvWebPreview Environment = "preview"
)

// ClassifyEnvironment normalizes a raw environment string into a known
// classification. Unrecognized values classify as production so that access
// gating fails closed.
func ClassifyEnvironment(raw string) Environment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sandbox", "staging", "test":
		return EnvSandbox
	case "development", "dev", "local":
		return EnvDevRuntime
	case "preview", "web", "web-preview":
		return EnvWebPreview
	default:
		return EnvProduction
	}
}

// String returns the string representation of the environment
func (e Environment) String() string {
	return string(e)
}

// AllowsSimulatedPurchases reports whether the mock purchase path may be
// substituted for the real purchase platform. Never true in production.
func (e Environment) AllowsSimulatedPurchases() bool {
	return e != EnvProduction
}

// AllowsDevSurface reports whether the dev/testing HTTP surface may be mounted.
func (e Environment) AllowsDevSurface() bool {
	return e != EnvProduction
}
