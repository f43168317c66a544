package tunnel

import (
	"context"
	"testing"

	"legato/internal/config"
	"legato/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledServiceIsNil(t *testing.T) {
	svc, err := NewService(&config.NgrokConfig{Enabled: false}, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, svc)

	// A nil service is safe to use.
	assert.NoError(t, svc.Start(context.Background(), "localhost:8080"))
	assert.Equal(t, "", svc.PublicURL())
	assert.NoError(t, svc.Stop())
}

func TestMissingAuthToken(t *testing.T) {
	_, err := NewService(&config.NgrokConfig{Enabled: true}, logging.Discard())
	assert.ErrorIs(t, err, ErrNoAuthToken)
}
