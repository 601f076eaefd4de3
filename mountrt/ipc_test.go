package mountrt

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsServerPingAndGetStats(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "stats.sock")
	stats := &Stats{}
	stats.OpsRead.Add(7)

	srv, err := ListenStats(socketPath, stats)
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Close()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(bufio.NewReader(conn))

	require.NoError(t, enc.Encode(ipcRequest{Method: "ping"}))
	var pong ipcPongResponse
	require.NoError(t, dec.Decode(&pong))
	assert.Equal(t, "pong", pong.Type)

	require.NoError(t, enc.Encode(ipcRequest{Method: "get_stats"}))
	var statsResp ipcStatsResponse
	require.NoError(t, dec.Decode(&statsResp))
	assert.Equal(t, "stats", statsResp.Type)
	assert.EqualValues(t, 7, statsResp.Data.OpsRead)
}

func TestStatsServerUnknownMethod(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "stats2.sock")
	srv, err := ListenStats(socketPath, &Stats{})
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Close()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(bufio.NewReader(conn))

	require.NoError(t, enc.Encode(ipcRequest{Method: "bogus"}))
	var errResp ipcErrorResponse
	require.NoError(t, dec.Decode(&errResp))
	assert.Equal(t, "error", errResp.Type)
}
