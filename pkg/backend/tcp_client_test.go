package backend

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mishard/core/pkg/mishard"
)

// fakeServer answers exactly one framed msgpack request with a
// pre-built framed msgpack response, emulating the backend node's wire
// protocol without needing a real one.
func fakeServer(t *testing.T, respond func(req wireRequest) wireResponse) (client net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	go func() {
		var lenBuf [4]byte
		if _, err := io.ReadFull(serverConn, lenBuf[:]); err != nil {
			return
		}
		body := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(serverConn, body); err != nil {
			return
		}
		var req wireRequest
		_ = msgpack.Unmarshal(body, &req)

		resp := respond(req)
		out, _ := msgpack.Marshal(resp)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(out)))
		_, _ = serverConn.Write(lenBuf[:])
		_, _ = serverConn.Write(out)
	}()

	return clientConn
}

func TestTCPClient_CountTable(t *testing.T) {
	conn := fakeServer(t, func(req wireRequest) wireResponse {
		return wireResponse{Result: int64(42)}
	})
	c := &TCPClient{addr: "fake", conn: conn, r: bufio.NewReader(conn)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := c.CountTable(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestTCPClient_ErrorResponseSurfaces(t *testing.T) {
	conn := fakeServer(t, func(req wireRequest) wireResponse {
		return wireResponse{Err: "table not found"}
	})
	c := &TCPClient{addr: "fake", conn: conn, r: bufio.NewReader(conn)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.CountTable(ctx, "missing")
	require.Error(t, err)
}

func TestTCPClient_ShowTables(t *testing.T) {
	conn := fakeServer(t, func(req wireRequest) wireResponse {
		return wireResponse{Result: []string{"t1", "t2"}}
	})
	c := &TCPClient{addr: "fake", conn: conn, r: bufio.NewReader(conn)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	names, err := c.ShowTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, names)
}

func TestTCPClient_Ping(t *testing.T) {
	conn := fakeServer(t, func(req wireRequest) wireResponse {
		assert.Equal(t, "ping", req.Op)
		return wireResponse{Result: true}
	})
	c := &TCPClient{addr: "fake", conn: conn, r: bufio.NewReader(conn)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Ping(ctx))
}

func TestTCPClient_PingSurfacesServerError(t *testing.T) {
	conn := fakeServer(t, func(req wireRequest) wireResponse {
		return wireResponse{Err: "connection reset"}
	})
	c := &TCPClient{addr: "fake", conn: conn, r: bufio.NewReader(conn)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, c.Ping(ctx))
}

func TestTCPClient_DescribeTable(t *testing.T) {
	conn := fakeServer(t, func(req wireRequest) wireResponse {
		return wireResponse{Result: mishard.TableDescriptor{Name: "t1", Dimension: 128, Metric: mishard.IP}}
	})
	c := &TCPClient{addr: "fake", conn: conn, r: bufio.NewReader(conn)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := c.DescribeTable(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 128, d.Dimension)
	assert.Equal(t, mishard.IP, d.Metric)
}
