package redis

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/bazaar-io-st/openbazaar-desktop/config"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptions(t *testing.T) {
	opts := clientOptions(config.RedisConfig{Host: "redis.example.com", Port: 6380, Password: "pw", DB: 3, PoolSize: 25})

	assert.Equal(t, "redis.example.com:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 25, opts.PoolSize)
	assert.Equal(t, clientName, opts.ClientName)
}

func TestClientOptions_DefaultPoolSize(t *testing.T) {
	opts := clientOptions(config.RedisConfig{Host: "localhost", Port: 6379})
	assert.Zero(t, opts.PoolSize, "zero leaves go-redis to size the pool")
}

func TestNewClient_Connects(t *testing.T) {
	s := miniredis.RunT(t)
	host, port, _ := net.SplitHostPort(s.Addr())
	p, _ := strconv.Atoi(port)

	client, err := NewClient(context.Background(), config.RedisConfig{Host: host, Port: p}, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestHealthCheck_Ping(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	hc := NewHealthCheck(client)

	assert.NoError(t, hc.Ping(context.Background()))
	assert.Equal(t, "redis", hc.Name())

	s.Close()
	assert.Error(t, hc.Ping(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	host, port, _ := net.SplitHostPort(addr)
	p, _ := strconv.Atoi(port)
	_, err := NewClient(context.Background(), config.RedisConfig{Host: host, Port: p}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}
