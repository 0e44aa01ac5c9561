package clipboard

import (
	"errors"
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

// ErrUnavailable is returned when the system clipboard could not be opened,
// typically on a headless machine.
var ErrUnavailable = errors.New("clipboard unavailable")

var (
	initOnce sync.Once
	initErr  error
	writeMu  sync.Mutex
)

// Init opens the system clipboard. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		if err := clipboard.Init(); err != nil {
			initErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	})
	return initErr
}

// Write copies text as plain text. Writes are serialised.
func Write(text string) error {
	if err := Init(); err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
