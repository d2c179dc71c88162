package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const prompt = "> "

// consolePoll bounds how long a quiescent console blocks before
// re-checking for shutdown.
const consolePoll = 50 * time.Millisecond

// Console runs the interactive operator prompt. Input is read in raw
// (non-canonical) mode when stdin is a terminal so shutdown can
// interrupt an in-progress line promptly.
type Console struct {
	interp *Interpreter
	in     *os.File
	out    io.Writer

	mu     sync.Mutex
	active bool
	line   []rune
}

// New creates a console reading from in (normally os.Stdin) and
// writing prompt and command feedback to out.
func New(interp *Interpreter, in *os.File, out io.Writer) *Console {
	return &Console{interp: interp, in: in, out: out}
}

// LogWriter wraps a log sink so asynchronous log lines are redrawn
// above the prompt instead of tearing through the operator's input.
func (c *Console) LogWriter(sink io.Writer) io.Writer {
	return &promptWriter{console: c, sink: sink}
}

type promptWriter struct {
	console *Console
	sink    io.Writer
}

func (w *promptWriter) Write(p []byte) (int, error) {
	c := w.console
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return w.sink.Write(p)
	}

	// Clear the prompt line, emit the log line with raw-mode line
	// endings, then redraw the prompt and whatever was typed.
	fmt.Fprint(w.sink, "\r\x1b[2K")
	out := strings.ReplaceAll(string(p), "\n", "\r\n")
	if _, err := io.WriteString(w.sink, out); err != nil {
		return 0, err
	}
	fmt.Fprint(w.sink, prompt+string(c.line))
	return len(p), nil
}

// Run reads and executes command lines until ctx is cancelled or the
// input stream ends.
func (c *Console) Run(ctx context.Context) error {
	fd := int(c.in.Fd())
	if !term.IsTerminal(fd) {
		return c.runPlain(ctx)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		slog.Warn("console raw mode unavailable", "error", err)
		return c.runPlain(ctx)
	}
	defer func() {
		_ = term.Restore(fd, oldState)
		fmt.Fprint(c.out, "\r\n")
	}()

	// The reader goroutine blocks on stdin; it is detached when Run
	// returns, which is fine because the process is exiting.
	bytes := make(chan byte, 64)
	go func() {
		defer close(bytes)
		buf := make([]byte, 1)
		for {
			n, err := c.in.Read(buf)
			if err != nil {
				return
			}
			if n == 1 {
				select {
				case bytes <- buf[0]:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	c.setActive(true)
	defer c.setActive(false)
	c.redraw()

	ticker := time.NewTicker(consolePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Wake up so a shutdown between keystrokes is noticed.
		case b, open := <-bytes:
			if !open {
				return nil
			}
			if done := c.handleByte(ctx, b); done {
				return nil
			}
		}
	}
}

// handleByte processes one raw input byte. Returns true when the
// console should stop.
func (c *Console) handleByte(ctx context.Context, b byte) bool {
	switch b {
	case '\r', '\n':
		c.mu.Lock()
		line := string(c.line)
		c.line = c.line[:0]
		fmt.Fprint(c.out, "\r\n")
		c.mu.Unlock()
		if strings.TrimSpace(line) != "" {
			c.execute(line)
		}
		c.redraw()
	case 0x7f, 0x08: // backspace
		c.mu.Lock()
		if len(c.line) > 0 {
			c.line = c.line[:len(c.line)-1]
			fmt.Fprint(c.out, "\b \b")
		}
		c.mu.Unlock()
	case 0x03: // Ctrl+C
		fmt.Fprint(c.out, "^C\r\n")
		c.interp.Execute("quit", ConsoleExecutor)
		return true
	case 0x04: // Ctrl+D
		return true
	default:
		if b >= 0x20 {
			c.mu.Lock()
			c.line = append(c.line, rune(b))
			fmt.Fprintf(c.out, "%c", b)
			c.mu.Unlock()
		}
	}
	return false
}

// runPlain handles non-terminal input (pipes, tests): plain buffered
// lines, no prompt redrawing.
func (c *Console) runPlain(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, open := <-lines:
			if !open {
				return nil
			}
			if strings.TrimSpace(line) != "" {
				c.execute(line)
			}
		}
	}
}

func (c *Console) execute(line string) {
	res := c.interp.Execute(line, ConsoleExecutor)
	tag := "[ok]"
	if !res.Success {
		tag = "[fail]"
	}
	c.mu.Lock()
	msg := strings.ReplaceAll(res.Message, "\n", c.lineEnding())
	fmt.Fprintf(c.out, "%s %s%s", tag, msg, c.lineEnding())
	c.mu.Unlock()
}

func (c *Console) lineEnding() string {
	if c.active {
		return "\r\n"
	}
	return "\n"
}

func (c *Console) setActive(v bool) {
	c.mu.Lock()
	c.active = v
	c.mu.Unlock()
}

func (c *Console) redraw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		fmt.Fprint(c.out, prompt+string(c.line))
	}
}
