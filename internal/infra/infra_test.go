package infra

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	for _, dev := range []bool{true, false} {
		logger, err := NewLogger(dev)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedis(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedis(context.Background(), addr)
	assert.Error(t, err)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "route-matches")
	assert.Equal(t, "route-matches", w.Topic)
	assert.Equal(t, "localhost:9092", w.Addr.String())
}
