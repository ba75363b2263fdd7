package stdio

import (
	"bufio"
	"io"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
)

// Conn is a line channel over an arbitrary reader and writer, such as the two
// ends of io.Pipe or a net.Conn.
type Conn struct {
	r      io.Reader
	w      io.Writer
	reader *bufio.Reader
	closed atomic.Bool
}

// NewConn wraps r and w. Close closes both if they implement io.Closer.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{
		r:      r,
		w:      w,
		reader: bufio.NewReader(r),
	}
}

func (c *Conn) Write(data []byte) (int, error) {
	return c.w.Write(data)
}

// ReadLine has the same contract as Process.ReadLine.
func (c *Conn) ReadLine() ([]byte, error) {
	line, err := c.reader.ReadBytes('\n')
	if errors.Is(err, io.EOF) && len(line) > 0 {
		return line, nil
	}
	if errors.Is(err, io.ErrClosedPipe) {
		return nil, io.EOF
	}
	return line, err
}

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if wc, ok := c.w.(io.Closer); ok {
		err = wc.Close()
	}
	if rc, ok := c.r.(io.Closer); ok {
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
