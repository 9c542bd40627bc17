package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBuildsBothFlavors(t *testing.T) {
	for _, development := range []bool{true, false} {
		logger, err := New(development)
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("logger constructed")
		_ = logger.Sync()
	}
}
