package data

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ChatLog appends chat lines to chat_log.txt.
type ChatLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenChatLog opens (or creates) the log in append mode.
func OpenChatLog(dir string) (*ChatLog, error) {
	path := filepath.Join(dir, "chat_log.txt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening chat log: %w", err)
	}
	return &ChatLog{path: path, file: f}, nil
}

// Append writes one timestamped chat line.
func (c *ChatLog) Append(playerName, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return fmt.Errorf("chat log is closed")
	}
	line := fmt.Sprintf("[%s] [%s]: %s\n",
		time.Now().Format(timeLayout), playerName, message)
	if _, err := c.file.WriteString(line); err != nil {
		return fmt.Errorf("appending chat line: %w", err)
	}
	return nil
}

// Tail returns the last maxLines lines of the log.
func (c *ChatLog) Tail(maxLines int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening chat log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading chat log: %w", err)
	}

	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// Close flushes and closes the underlying file.
func (c *ChatLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}
