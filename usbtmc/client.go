package usbtmc

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardnew/softtmc/pkg"
)

// Client is the host side of a USBTMC bulk interface.
type Client struct {
	pipe Pipe
	tag  uint8
	buf  []byte
	size int

	mutex sync.Mutex
}

// NewClient creates a host client that accepts responses of up to size
// bytes.
func NewClient(pipe Pipe, size int) *Client {
	if size <= 0 {
		size = DefaultMaxPacket
	}
	return &Client{
		pipe: pipe,
		buf:  make([]byte, Align4(HeaderSize+size)),
		size: size,
	}
}

// nextTag returns the next bTag, cycling through 1-255.
// Caller must hold the mutex.
func (c *Client) nextTag() uint8 {
	c.tag++
	if c.tag == 0 {
		c.tag = 1
	}
	return c.tag
}

// Write sends data as one DEV_DEP_MSG_OUT message.
func (c *Client) Write(ctx context.Context, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.write(ctx, data)
}

func (c *Client) write(ctx context.Context, data []byte) error {
	pkt := make([]byte, Align4(HeaderSize+len(data)))
	hdr := BulkOutHeader{
		MsgID:        MsgDevDepMsgOut,
		Tag:          c.nextTag(),
		TransferSize: uint32(len(data)),
		Attributes:   AttrEOM,
	}
	hdr.MarshalTo(pkt)
	copy(pkt[HeaderSize:], data)

	if _, err := c.pipe.Write(ctx, pkt); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Read requests a response of at most maxLen bytes and returns it. A
// maxLen of zero or less requests the client's full capacity.
func (c *Client) Read(ctx context.Context, maxLen int) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.read(ctx, maxLen)
}

func (c *Client) read(ctx context.Context, maxLen int) ([]byte, error) {
	if maxLen <= 0 || maxLen > c.size {
		maxLen = c.size
	}

	var req [HeaderSize]byte
	tag := c.nextTag()
	hdr := BulkOutHeader{
		MsgID:        MsgRequestDevDepMsgIn,
		Tag:          tag,
		TransferSize: uint32(maxLen),
	}
	hdr.MarshalTo(req[:])
	if _, err := c.pipe.Write(ctx, req[:]); err != nil {
		return nil, fmt.Errorf("request response: %w", err)
	}

	n, err := c.pipe.Read(ctx, c.buf)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var in BulkInHeader
	if !ParseBulkInHeader(c.buf[:n], &in) {
		return nil, fmt.Errorf("invalid bulk in header (%d bytes): %w", n, pkg.ErrProtocol)
	}
	if in.Tag != tag {
		return nil, fmt.Errorf("response tag %d, want %d: %w", in.Tag, tag, pkg.ErrTagMismatch)
	}
	if int(in.TransferSize) > n-HeaderSize {
		return nil, fmt.Errorf("response claims %d bytes, got %d: %w",
			in.TransferSize, n-HeaderSize, pkg.ErrProtocol)
	}

	out := make([]byte, in.TransferSize)
	copy(out, c.buf[HeaderSize:])
	return out, nil
}

// Query writes cmd and reads the response.
func (c *Client) Query(ctx context.Context, cmd []byte, maxLen int) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.write(ctx, cmd); err != nil {
		return nil, err
	}
	return c.read(ctx, maxLen)
}
