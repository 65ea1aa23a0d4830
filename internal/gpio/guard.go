package gpio

import "sync"

// PinGuard is scoped ownership of a line's direction. Acquiring switches the
// line to the working mode; Release puts it back into the restore mode on
// every exit path, driving it low first when the restore mode is Output so
// the line never floats high after a failed rotation.
type PinGuard struct {
	ctl     LineController
	line    uint8
	restore Mode

	mu       sync.Mutex
	released bool
}

// AcquirePin switches line to mode and returns a guard that restores the
// line to restoreMode when released.
func AcquirePin(ctl LineController, line uint8, mode, restoreMode Mode) (*PinGuard, error) {
	if err := ctl.SetMode(line, mode); err != nil {
		return nil, err
	}
	return &PinGuard{ctl: ctl, line: line, restore: restoreMode}, nil
}

// Release restores the line. It is idempotent so it can be deferred and also
// called early on the success path.
func (g *PinGuard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil
	}
	g.released = true

	if g.restore == Output {
		if err := g.ctl.SetMode(g.line, Output); err != nil {
			return err
		}
		return g.ctl.WriteLine(g.line, Low)
	}
	return g.ctl.SetMode(g.line, Input)
}
