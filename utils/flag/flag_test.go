package flag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The shared flags must be usable by any binary (test binaries included)
// before Parse runs, falling back to their defaults.
func TestFlagDefaultsAvailableWithoutParse(t *testing.T) {
	require.NotNil(t, IsDevelopment)
	require.NotNil(t, ServiceName)
	require.True(t, *IsDevelopment)
	require.Equal(t, APIServer, *ServiceName)
}
