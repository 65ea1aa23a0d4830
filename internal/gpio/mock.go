package gpio

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockLinePort implements LinePorter for dev mode. Reads come from a pipe
// fed by a replay goroutine; writes are discarded.
type MockLinePort struct {
	io.Reader
	io.Closer
}

func (m *MockLinePort) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// NewMockLineMux creates a LineMux backed by a mock port that replays the
// given fixture bytes (a captured board event stream) on a loop. It lets the
// daemon run end to end with no interface board attached.
func NewMockLineMux(fixture []byte, interval time.Duration) *LineMux[*MockLinePort] {
	r, w := io.Pipe()

	mockPort := &MockLinePort{
		Reader: r,
		Closer: r,
	}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := w.Write(fixture); err != nil {
				return
			}
		}
	}()

	return NewLineMux(mockPort)
}

// TestableLinePort implements LinePorter with configurable behaviour for
// tests: scripted reads, captured writes, injectable errors and latency.
type TestableLinePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	// readCond is used to signal blocked readers
	readCond *sync.Cond
}

// NewTestableLinePort creates a new TestableLinePort for testing.
func NewTestableLinePort() *TestableLinePort {
	p := &TestableLinePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read reads from the read buffer, optionally simulating latency and errors.
func (p *TestableLinePort) Read(b []byte) (n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Closed {
		return 0, errors.New("line controller port closed")
	}

	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}

	if p.ReadLatency > 0 {
		p.mu.Unlock()
		time.Sleep(p.ReadLatency)
		p.mu.Lock()
	}

	if p.BlockReads && p.ReadBuffer.Len() == 0 {
		for !p.Closed && p.ReadBuffer.Len() == 0 {
			p.readCond.Wait()
		}
		if p.Closed {
			return 0, errors.New("line controller port closed")
		}
	}

	return p.ReadBuffer.Read(b)
}

// Write writes to the write buffer, optionally simulating errors.
func (p *TestableLinePort) Write(b []byte) (n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Closed {
		return 0, errors.New("line controller port closed")
	}

	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}

	return p.WriteBuffer.Write(b)
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestableLinePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.readCond.Broadcast()

	return p.CloseError
}

// AddReadData adds data to be returned by subsequent Read calls.
func (p *TestableLinePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadBuffer.Write(data)
	p.readCond.Signal()
}

// GetWrittenData returns all data written to the port.
func (p *TestableLinePort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.WriteBuffer.Bytes()
}
