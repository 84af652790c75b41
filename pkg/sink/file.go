package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

type FileConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FileOutput appends events as JSON lines.
type FileOutput struct {
	path string
	mu   sync.Mutex
	file *os.File
}

func NewFileOutput(path string) (*FileOutput, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileOutput{path: path, file: f}, nil
}

func (f *FileOutput) Name() string { return "file" }

func (f *FileOutput) Send(ctx context.Context, events []Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeLines(f.file, events)
}

func (f *FileOutput) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// ConsoleOutput prints events as JSON lines.
type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{w: os.Stdout}
}

func (c *ConsoleOutput) Name() string { return "console" }

func (c *ConsoleOutput) Send(ctx context.Context, events []Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeLines(c.w, events)
}

func (c *ConsoleOutput) Close() error { return nil }

func writeLines(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
