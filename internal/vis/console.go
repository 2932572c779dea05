package vis

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/coreman2200/funtimes-ptycho/internal/clock"
)

const (
	DefaultRetries = 3
	retryBackoff   = 10 * time.Millisecond
)

// Console writes newline-terminated lines to the host link, retrying failed
// or short writes a few times before giving up.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	retries int
	clk     clock.Clock
	failed  int
}

func NewConsole(w io.Writer, retries int, clk clock.Clock) *Console {
	if retries < 1 {
		retries = 1
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Console{w: w, retries: retries, clk: clk}
}

// Println writes line plus a newline. It reports whether the whole line was
// written.
func (c *Console) Println(line string) bool {
	if c == nil || c.w == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := []byte(line + "\n")
	for i := 0; i < c.retries; i++ {
		n, err := c.w.Write(buf)
		if err == nil && n == len(buf) {
			return true
		}
		if err == nil {
			err = io.ErrShortWrite
		}
		if errors.Is(err, io.ErrClosedPipe) {
			break
		}
		buf = buf[n:]
		c.clk.Sleep(retryBackoff)
	}
	c.failed++
	return false
}

// Failed counts lines that were dropped after all retries.
func (c *Console) Failed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}
