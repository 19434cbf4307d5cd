// Package notebook maintains the shared lab notebook: an append-only
// markdown record of decisions, observations, and results that roles read
// and write through tools.
package notebook

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// EntryType classifies a notebook entry.
type EntryType string

const (
	EntryPlan       EntryType = "PLAN"
	EntryNote       EntryType = "NOTE"
	EntryOutput     EntryType = "OUTPUT"
	EntryCompletion EntryType = "COMPLETION"
)

// ReadCharLimit caps how much notebook content a single read returns. When
// the notebook exceeds the limit, the read keeps the most recent content.
const ReadCharLimit = 100_000

// Notebook is an append-only markdown file with typed entries.
type Notebook struct {
	path   string
	header string
	mu     sync.Mutex
}

// New creates a notebook backed by the given file. The header is written
// once, on first use, if the file does not exist yet.
func New(path, header string) *Notebook {
	return &Notebook{path: path, header: header}
}

// Path returns the notebook file path.
func (n *Notebook) Path() string {
	return n.path
}

// Initialize creates the notebook file with its header if it does not exist.
func (n *Notebook) Initialize() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.initializeLocked()
}

func (n *Notebook) initializeLocked() error {
	if _, err := os.Stat(n.path); err == nil {
		return nil
	}
	if err := os.WriteFile(n.path, []byte(n.header), 0o644); err != nil {
		return fmt.Errorf("failed to create notebook %s: %w", n.path, err)
	}
	return nil
}

// Read returns the notebook content, truncated from the front to
// ReadCharLimit so the most recent entries survive.
func (n *Notebook) Read() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.initializeLocked(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(n.path)
	if err != nil {
		return "", fmt.Errorf("failed to read notebook %s: %w", n.path, err)
	}

	content := string(data)
	if len(content) > ReadCharLimit {
		content = content[len(content)-ReadCharLimit:]
	}
	return content, nil
}

// Append adds a typed entry with a timestamp and source attribution and
// returns the formatted entry as written.
func (n *Notebook) Append(entry string, entryType EntryType, source string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.initializeLocked(); err != nil {
		return "", err
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	formatted := fmt.Sprintf("\n### [%s] %s - %s\n\n%s\n\n", timestamp, source, entryType, entry)

	f, err := os.OpenFile(n.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open notebook %s: %w", n.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatted); err != nil {
		return "", fmt.Errorf("failed to append to notebook %s: %w", n.path, err)
	}
	return formatted, nil
}
