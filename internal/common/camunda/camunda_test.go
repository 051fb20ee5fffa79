package camunda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"facility-search-workers/internal/common/config"
)

func TestNewClientWithConfig_UnreachableGateway(t *testing.T) {
	client, err := NewClientWithConfig(&ClientConfig{
		GatewayAddress:         "127.0.0.1:1",
		UsePlaintextConnection: true,
		ConnectionTimeout:      300 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestStartWorker_Disabled(t *testing.T) {
	// A disabled worker never touches the client.
	w := StartWorker(nil, "resolve-query", config.WorkerConfig{Enabled: false}, nil, zaptest.NewLogger(t))
	assert.Nil(t, w)
}
