package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+server.Addr()+"/0", "gema-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "sweep:lock", "node", 0).Err())
	require.True(t, server.Exists("sweep:lock"))
}

func TestConnectRedisRejectsBadInput(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "", "gema-test")
	require.Error(t, err)

	_, err = ConnectRedis(context.Background(), "mysql://nope", "gema-test")
	require.ErrorContains(t, err, "parse redis url")
}

func TestConnectPostgresRequiresDSN(t *testing.T) {
	_, err := ConnectPostgres("", PoolConfig{})
	require.Error(t, err)
}

func TestConnectNATSRequiresURL(t *testing.T) {
	_, err := ConnectNATS("", "gema-test")
	require.Error(t, err)
}
