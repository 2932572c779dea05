package vis

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-ptycho/internal/clock"
	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
	"github.com/coreman2200/funtimes-ptycho/internal/pattern"
)

type mirror struct{ lines []string }

func (m *mirror) Publish(line string) { m.lines = append(m.lines, line) }

func newSink() (*Sink, *bytes.Buffer, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1000, 0))
	var buf bytes.Buffer
	return New(NewConsole(&buf, DefaultRetries, clk), DefaultInterval, clk), &buf, clk
}

func TestSendLEDGatedByEnable(t *testing.T) {
	s, buf, _ := newSink()
	s.SendLED(1, 2, matrix.Green)
	assert.Empty(t, buf.String())

	s.Enable()
	s.SendLED(1, 2, matrix.Green)
	s.SendLED(63, 0, matrix.White)
	assert.Equal(t, "LED,1,2,2\nLED,63,0,7\n", buf.String())

	s.Disable()
	s.SendLED(5, 5, matrix.Red)
	assert.Equal(t, "LED,1,2,2\nLED,63,0,7\n", buf.String())
}

func TestExportPattern(t *testing.T) {
	s, buf, _ := newSink()
	m := &mirror{}
	s.SetMirror(m)
	g := pattern.NewGrid(8, 8)
	g.Set(3, 1)
	g.Set(0, 5)
	g.Set(7, 1)

	s.ExportPattern(g)
	assert.Empty(t, buf.String())

	s.Enable()
	s.ExportPattern(g)
	want := []string{"PATTERN_START", "PATTERN,3,1", "PATTERN,7,1", "PATTERN,0,5", "PATTERN_END"}
	assert.Equal(t, strings.Join(want, "\n")+"\n", buf.String())
	assert.Equal(t, want, m.lines)
}

func TestExportEmptyPattern(t *testing.T) {
	s, buf, _ := newSink()
	s.Enable()
	s.ExportPattern(pattern.NewGrid(4, 4))
	assert.Equal(t, "PATTERN_START\nPATTERN_END\n", buf.String())
}

func TestUpdateInterval(t *testing.T) {
	s, _, clk := newSink()
	clk.Advance(time.Second)
	assert.False(t, s.Update(), "disabled")

	s.Enable()
	assert.False(t, s.Update())
	clk.Advance(DefaultInterval)
	assert.True(t, s.Update())
	assert.False(t, s.Update())
}

type flaky struct {
	fails int
	buf   bytes.Buffer
	calls int
}

func (f *flaky) Write(p []byte) (int, error) {
	f.calls++
	if f.calls <= f.fails {
		return 0, errors.New("tx busy")
	}
	return f.buf.Write(p)
}

func TestConsoleRetries(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	w := &flaky{fails: 2}
	c := NewConsole(w, 3, clk)
	require.True(t, c.Println("hello"))
	assert.Equal(t, "hello\n", w.buf.String())
	assert.Equal(t, 20*time.Millisecond, clk.Slept())

	w = &flaky{fails: 5}
	c = NewConsole(w, 3, clk)
	assert.False(t, c.Println("lost"))
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, 1, c.Failed())
}

type short struct{ bytes.Buffer }

func (s *short) Write(p []byte) (int, error) {
	if len(p) > 2 {
		p = p[:2]
	}
	return s.Buffer.Write(p)
}

func TestConsoleShortWrites(t *testing.T) {
	w := &short{}
	c := NewConsole(w, 5, clock.NewFake(time.Unix(0, 0)))
	assert.True(t, c.Println("abcd"))
	assert.Equal(t, "abcd\n", w.String())
}
