package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionStatus_String(t *testing.T) {
	require.Equal(t, "unconfigured", StatusUnconfigured.String())
	require.Equal(t, "available", StatusAvailable.String())
	require.Equal(t, "unauthorized", StatusUnauthorized.String())
	require.Equal(t, "unknown", StatusUnknown.String())
	require.Equal(t, "invalid", ConnectionStatus(42).String())
}

func TestConnectionStatus_Reachable(t *testing.T) {
	require.False(t, StatusUnconfigured.Reachable())
	require.True(t, StatusAvailable.Reachable())
	require.False(t, StatusUnauthorized.Reachable())
	require.True(t, StatusUnknown.Reachable())
}
