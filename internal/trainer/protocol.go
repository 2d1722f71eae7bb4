package trainer

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Message types emitted by the training backends on stdout, one JSON object
// per line.
const (
	msgProgress = "progress"
	msgLog      = "log"
	msgError    = "error"
	msgComplete = "complete"
)

// Message is one line of the backend's stdout protocol. Fields are populated
// according to Type; unset fields keep their zero value.
type Message struct {
	Type        string  `json:"type"`
	Step        int     `json:"step"`
	TotalSteps  int     `json:"total_steps"`
	Loss        float64 `json:"loss"`
	Message     string  `json:"message"`
	Error       string  `json:"error"`
	AdapterPath string  `json:"adapter_path"`
	GGUFPath    string  `json:"gguf_path"`
}

// maxLineSize bounds a single protocol line. Backends emit short objects;
// anything larger is runaway output, not protocol.
const maxLineSize = 1 << 20

// decodeStream reads newline-delimited JSON messages from r and delivers them
// in order on the returned channel. Lines that are not valid protocol objects
// (library chatter, blank lines) are silently dropped. The channel is closed
// when r reaches EOF or errors.
func decodeStream(r io.Reader) <-chan Message {
	out := make(chan Message, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || line[0] != '{' {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				continue
			}
			switch msg.Type {
			case msgProgress, msgLog, msgError, msgComplete:
				out <- msg
			}
		}
	}()
	return out
}
