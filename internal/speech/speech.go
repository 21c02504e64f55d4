// Package speech runs an external recognizer command and turns its output,
// one JSON object per line, into relay recognition events.
package speech

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/relay"
)

// ErrNoCommand is returned by Detect when no recognizer is configured.
var ErrNoCommand = errors.New("speech: no recognizer command configured")

// Command implements relay.Recognizer by launching a recognizer process per
// capture session. The process is stopped with SIGTERM to its process group.
type Command struct {
	Binary string
	Args   []string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ relay.Recognizer = (*Command)(nil)

// Detect resolves the configured recognizer once. It fails when the command
// is empty or not on PATH; callers then run without speech capture.
func Detect(cfg config.SpeechConfig) (*Command, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, ErrNoCommand
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	return &Command{Binary: path, Args: cfg.Args}, nil
}

// line is one recognizer output record.
type line struct {
	Final      bool   `json:"final"`
	Transcript string `json:"transcript"`
	Error      string `json:"error,omitempty"`
}

// parseLine decodes one output line. Blank and malformed lines are skipped.
func parseLine(text string) (relay.RecognitionEvent, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return relay.RecognitionEvent{}, false
	}
	var l line
	if err := json.Unmarshal([]byte(text), &l); err != nil {
		return relay.RecognitionEvent{}, false
	}
	if l.Error != "" {
		return relay.RecognitionEvent{Err: fmt.Errorf("speech: recognizer: %s", l.Error)}, true
	}
	return relay.RecognitionEvent{Final: l.Final, Transcript: l.Transcript}, true
}

// Start launches the recognizer. The returned channel closes when the
// process exits or Stop is called.
func (c *Command) Start(ctx context.Context) (<-chan relay.RecognitionEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil, fmt.Errorf("speech: already recording")
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("speech: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("speech: start %s: %w", c.Binary, err)
	}

	out := make(chan relay.RecognitionEvent, 16)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	emit := func(ev relay.RecognitionEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(done)
		defer close(out)
		defer func() {
			c.mu.Lock()
			if c.done == done {
				c.cancel = nil
				c.done = nil
			}
			c.mu.Unlock()
			cancel()
		}()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024) // 1MB buffer
		for scanner.Scan() {
			ev, ok := parseLine(scanner.Text())
			if !ok {
				continue
			}
			if !emit(ev) {
				break
			}
		}
		waitErr := cmd.Wait()
		if ctx.Err() != nil {
			return
		}
		if err := scanner.Err(); err != nil {
			emit(relay.RecognitionEvent{Err: fmt.Errorf("speech: read: %w", err)})
			return
		}
		if waitErr != nil {
			log.Printf("speech: recognizer exited: %v", waitErr)
			emit(relay.RecognitionEvent{Err: fmt.Errorf("speech: recognizer exited: %w", waitErr)})
		}
	}()

	return out, nil
}

// Stop ends the current session and waits for the process to exit. It is
// a no-op when nothing is recording.
func (c *Command) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
