package trainer

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// stopGrace is how long a signaled backend gets to exit before it is killed.
const stopGrace = 2 * time.Second

// stderrTailSize bounds how much trailing stderr is kept for diagnostics.
const stderrTailSize = 4096

// tailBuffer keeps the last stderrTailSize bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > stderrTailSize {
		b.buf = b.buf[len(b.buf)-stderrTailSize:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// terminate asks the process to exit with SIGTERM, escalating to SIGKILL
// after stopGrace. done must close when the process's stdout reaches EOF.
func terminate(p *os.Process, done <-chan struct{}, log zerolog.Logger) {
	if p == nil {
		return
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		_ = p.Kill()
		return
	}
	select {
	case <-done:
	case <-time.After(stopGrace):
		log.Warn().Int("pid", p.Pid).Msg("training process ignored SIGTERM, killing")
		_ = p.Kill()
	}
}
