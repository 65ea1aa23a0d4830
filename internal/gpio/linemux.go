package gpio

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/ph.report/internal/monitoring"
)

var ErrWriteFailed = fmt.Errorf("failed to write to line controller port")

// LineMux multiplexes a single line-controller port between multiple
// consumers: any number of subscribers receive the event stream while
// command writers share the port under a mutex.
//
// Board protocol, newline-delimited text:
//
//	board -> host   E,<line>,<level>,<tick>
//	host -> board   W,<line>,<level>         drive an output line
//	                M,<line>,I|O            set line direction
//	                N,<line>,<steady>,<active>  noise filter, microseconds
//	                S,<line>,R|F|E          watch rising/falling/either edges
type LineMux[T LinePorter] struct {
	port         T
	subscribers  map[string]chan LineEvent
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewLineMux creates a LineMux backed by the given port.
func NewLineMux[T LinePorter](port T) *LineMux[T] {
	return &LineMux[T]{
		port:        port,
		subscribers: make(map[string]chan LineEvent),
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (m *LineMux[T]) Subscribe() (string, chan LineEvent) {
	id := randomID()
	ch := make(chan LineEvent, 64)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (m *LineMux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// WriteLine drives an output line to the given level.
func (m *LineMux[T]) WriteLine(line uint8, level Level) error {
	return m.sendCommand(fmt.Sprintf("W,%d,%d", line, level))
}

// SetMode configures the direction of a line.
func (m *LineMux[T]) SetMode(line uint8, mode Mode) error {
	c := "I"
	if mode == Output {
		c = "O"
	}
	return m.sendCommand(fmt.Sprintf("M,%d,%s", line, c))
}

// SetNoiseFilter configures glitch suppression for a line.
func (m *LineMux[T]) SetNoiseFilter(line uint8, steady, active time.Duration) error {
	return m.sendCommand(fmt.Sprintf("N,%d,%d,%d", line, steady.Microseconds(), active.Microseconds()))
}

// WatchLine asks the board to report the selected edges of a line.
func (m *LineMux[T]) WatchLine(line uint8, edge Edge) error {
	c := "R"
	switch edge {
	case FallingEdge:
		c = "F"
	case EitherEdge:
		c = "E"
	}
	return m.sendCommand(fmt.Sprintf("S,%d,%s", line, c))
}

// sendCommand writes one command line to the port.
func (m *LineMux[T]) sendCommand(command string) error {
	m.commandMu.Lock()
	defer m.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := m.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// parseEvent parses a board event line. Lines that are not events (boot
// banners, command acknowledgements) are reported via the false return.
func parseEvent(s string) (LineEvent, bool) {
	if !strings.HasPrefix(s, "E,") {
		return LineEvent{}, false
	}
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return LineEvent{}, false
	}
	line, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return LineEvent{}, false
	}
	level, err := strconv.ParseUint(fields[2], 10, 1)
	if err != nil {
		return LineEvent{}, false
	}
	tick, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return LineEvent{}, false
	}
	return LineEvent{Line: uint8(line), Level: Level(level), Tick: uint32(tick)}, true
}

// Monitor reads the port and fans events out to subscribers.
//
// Fan-out never blocks: a subscriber that does not drain its channel loses
// events rather than stalling the edge feed, because tick deltas stop being
// meaningful the moment delivery backs up behind a slow consumer.
func (m *LineMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop can
	// await both scanned lines and context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case raw, ok := <-lineChan:
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			ev, ok := parseEvent(raw)
			if !ok {
				monitoring.Logf("line controller: %s", raw)
				continue
			}

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- ev:
				default:
					// subscriber is full; drop rather than stall the feed
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

func (m *LineMux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return m.port.Close()
}
