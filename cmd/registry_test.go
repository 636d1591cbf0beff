//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/techmap/internal/registry"
)

func TestFormatRegistry(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)

	var buf bytes.Buffer
	formatRegistry(&buf, reg)

	output := buf.String()
	assert.Contains(t, output, "CANONICAL")
	assert.Contains(t, output, "vanadium")
	assert.Contains(t, output, "Vanadium-Redox-Flow")
	assert.Contains(t, output, "H2-charger")
	assert.Contains(t, output, "H2 electrolysis")
	assert.Contains(t, output, "EXCLUDED PATTERN")
	assert.Contains(t, output, "transportation")
}
