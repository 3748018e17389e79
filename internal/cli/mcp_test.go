package cli

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMCPServer(t *testing.T) {
	dir := t.TempDir()
	srv, cleanup, err := NewMCPServer(MCPOptions{
		Dir:      dir,
		PlanPath: writePlan(t, dir, checkoutPlan),
		Logger:   logging.NewNop(),
	})
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, srv.MCPServer())
}

func TestServeMCP_Errors(t *testing.T) {
	dir := t.TempDir()
	err := ServeMCP(context.Background(), MCPOptions{Dir: dir, Transport: "carrier-pigeon", Logger: logging.NewNop()})
	assert.ErrorContains(t, err, `unknown transport "carrier-pigeon"`)

	err = ServeMCP(context.Background(), MCPOptions{Dir: dir, PlanPath: dir + "/missing.yaml", Transport: TransportSSE, Logger: logging.NewNop()})
	assert.Error(t, err)
}
