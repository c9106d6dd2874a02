package serialmux

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// pipePort is an in-memory serial port: tests feed lines with Input and
// read what the mux wrote with Output.
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu     sync.Mutex
	out    bytes.Buffer
	closed bool
}

func newPipePort() *pipePort {
	r, w := io.Pipe()
	return &pipePort{r: r, w: w}
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.out.Write(b)
}

func (p *pipePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.r.Close()
}

// Input blocks until the mux has read s.
func (p *pipePort) Input(s string) { _, _ = io.WriteString(p.w, s) }

// Hangup simulates the device going away.
func (p *pipePort) Hangup() { _ = p.w.Close() }

func (p *pipePort) Output() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := strings.TrimSuffix(p.out.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
