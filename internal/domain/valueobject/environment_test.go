package valueobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEnvironment(t *testing.T) {
	cases := []struct {
		raw  string
		want Environment
	}{
		{"production", EnvProduction},
		{"sandbox", EnvSandbox},
		{"staging", EnvSandbox},
		{"test", EnvSandbox},
		{"development", EnvDevRuntime},
		{"dev", EnvDevRuntime},
		{"local", EnvDevRuntime},
		{"preview", EnvWebPreview},
		{"web", EnvWebPreview},
		{" Sandbox ", EnvSandbox},
		// Unknown values fail closed to production.
		{"", EnvProduction},
		{"garbage", EnvProduction},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyEnvironment(tc.raw), "raw %q", tc.raw)
	}
}

func TestEnvironment_Gates(t *testing.T) {
	assert.False(t, EnvProduction.AllowsSimulatedPurchases())
	assert.False(t, EnvProduction.AllowsDevSurface())

	for _, env := range []Environment{EnvSandbox, EnvDevRuntime, EnvWebPreview} {
		assert.True(t, env.AllowsSimulatedPurchases(), "env %s", env)
		assert.True(t, env.AllowsDevSurface(), "env %s", env)
	}
}
