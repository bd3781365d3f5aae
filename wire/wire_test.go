package wire_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felipemeriga/artemis/types"
	"github.com/felipemeriga/artemis/wire"
)

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	payload := wire.RegisterPayload{ID: "node-1", Address: "127.0.0.1:9000"}
	frame, err := wire.EncodeMessage(wire.CommandRegister, payload)
	require.NoError(t, err)
	assert.Contains(t, string(frame), wire.EndBlockDelimiter)

	msg, err := wire.ReadMessage(bufio.NewReader(bytes.NewReader(frame)))
	require.NoError(t, err)
	assert.Equal(t, wire.CommandRegister, msg.Command)
	assert.Contains(t, msg.Data, "node-1")
}

func TestReadMessageOnClosedStream(t *testing.T) {
	_, err := wire.ReadMessage(bufio.NewReader(bytes.NewReader(nil)))
	assert.ErrorIs(t, err, wire.ErrStreamClosed)
}

func TestWriteChainThenReadChainRoundTrips(t *testing.T) {
	b0 := types.NewBlock(0, 0, nil, "")
	b1 := types.NewBlock(1, 1, nil, b0.Hash)
	blocks := []*types.Block{b0, b1}

	var buf bytes.Buffer
	require.NoError(t, wire.WriteChain(&buf, blocks))
	assert.Contains(t, buf.String(), wire.EndChainSentinel)

	got, err := wire.ReadChain(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b0.Hash, got[0].Hash)
	assert.Equal(t, b1.Hash, got[1].Hash)
}

func TestReadChainToleratesEmptyChain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteChain(&buf, nil))

	got, err := wire.ReadChain(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Empty(t, got)
}
