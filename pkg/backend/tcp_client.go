package backend

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mishard/core/pkg/mishard"
)

// wireRequest/wireResponse are the msgpack envelope exchanged with a
// backend node: an op name plus an opaque payload, and a result plus an
// error string (empty on success).
type wireRequest struct {
	Op      string      `msgpack:"op"`
	Payload interface{} `msgpack:"payload"`
}

type wireResponse struct {
	Result interface{} `msgpack:"result"`
	Err    string      `msgpack:"err"`
}

// TCPClient is a Client backed by a single long-lived TCP connection,
// framed length-prefixed msgpack. It is the default Factory product for
// real deployments; single-flight, like many RPC client SDKs, so the
// connection pool multiplexes by holding one TCPClient per address per
// pooled slot rather than sharing one across concurrent callers.
type TCPClient struct {
	addr string
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// DialTCP is a Factory that dials addr and wraps it in a TCPClient.
func DialTCP(ctx context.Context, addr string) (Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &TCPClient{addr: addr, conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *TCPClient) call(ctx context.Context, op string, payload, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	body, err := msgpack.Marshal(wireRequest{Op: op, Payload: payload})
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := c.conn.Write(body); err != nil {
		return err
	}

	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return err
	}
	respBody := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(c.r, respBody); err != nil {
		return err
	}

	var resp wireResponse
	resp.Result = out
	if err := msgpack.Unmarshal(respBody, &resp); err != nil {
		return err
	}
	if resp.Err != "" {
		return fmt.Errorf("%s: %s", op, resp.Err)
	}
	return nil
}

func (c *TCPClient) SearchInFiles(ctx context.Context, p SearchParams) ([]mishard.Block, error) {
	var blocks []mishard.Block
	if err := c.call(ctx, "search_in_files", p, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *TCPClient) DescribeTable(ctx context.Context, table string) (*mishard.TableDescriptor, error) {
	var d mishard.TableDescriptor
	if err := c.call(ctx, "describe_table", table, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *TCPClient) CreateTable(ctx context.Context, d mishard.TableDescriptor) error {
	return c.call(ctx, "create_table", d, nil)
}

func (c *TCPClient) HasTable(ctx context.Context, table string) (bool, error) {
	var has bool
	err := c.call(ctx, "has_table", table, &has)
	return has, err
}

func (c *TCPClient) DropTable(ctx context.Context, table string) error {
	return c.call(ctx, "drop_table", table, nil)
}

func (c *TCPClient) CreateIndex(ctx context.Context, table string, p IndexParams) error {
	return c.call(ctx, "create_index", struct {
		Table string
		IndexParams
	}{table, p}, nil)
}

func (c *TCPClient) DescribeIndex(ctx context.Context, table string) (*IndexParams, error) {
	var p IndexParams
	if err := c.call(ctx, "describe_index", table, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *TCPClient) DropIndex(ctx context.Context, table string) error {
	return c.call(ctx, "drop_index", table, nil)
}

func (c *TCPClient) Insert(ctx context.Context, table string, vectors [][]float32) ([]int64, error) {
	var ids []int64
	err := c.call(ctx, "insert", struct {
		Table   string
		Vectors [][]float32
	}{table, vectors}, &ids)
	return ids, err
}

func (c *TCPClient) CountTable(ctx context.Context, table string) (int64, error) {
	var n int64
	err := c.call(ctx, "count_table", table, &n)
	return n, err
}

func (c *TCPClient) ShowTables(ctx context.Context) ([]string, error) {
	var names []string
	err := c.call(ctx, "show_tables", nil, &names)
	return names, err
}

func (c *TCPClient) DeleteByRange(ctx context.Context, table string, start, end time.Time) error {
	return c.call(ctx, "delete_by_range", struct {
		Table      string
		Start, End time.Time
	}{table, start, end}, nil)
}

func (c *TCPClient) PreloadTable(ctx context.Context, table string) error {
	return c.call(ctx, "preload_table", table, nil)
}

// Ping sends a lightweight round trip over the wire to confirm the
// connection still answers before it is handed back out of the pool.
func (c *TCPClient) Ping(ctx context.Context) error {
	var ok bool
	return c.call(ctx, "ping", nil, &ok)
}

func (c *TCPClient) ServerVersion(ctx context.Context) (string, error) {
	var v string
	err := c.call(ctx, "server_version", nil, &v)
	return v, err
}

func (c *TCPClient) ServerStatus(ctx context.Context) (string, error) {
	var v string
	err := c.call(ctx, "server_status", nil, &v)
	return v, err
}

func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
