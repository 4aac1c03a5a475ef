package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerWritesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.plog")

	for round := 0; round < 2; round++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: "conn", Packet: &PacketEvent{Family: 0, ID: 1}})
		if written, dropped := logger.Stats(); written != 1 || dropped != 0 {
			t.Errorf("Stats = %d, %d", written, dropped)
		}
		if logger.Path() != path {
			t.Errorf("Path = %q", logger.Path())
		}
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	events, err := ReadAll(path, Filter{})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Packet == nil || events[1].Packet.ID != 1 {
		t.Errorf("unexpected event %+v", events[1])
	}
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.plog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	logger.Log(Event{ConnectionID: "ignored"})
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("file size %d after Log on closed logger", info.Size())
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.plog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Log(Event{Timestamp: time.Now(), ConnectionID: "conn"})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	events, err := ReadAll(path, Filter{})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 200 {
		t.Errorf("got %d events, want 200", len(events))
	}
}

func TestNewFileLoggerBadPath(t *testing.T) {
	if _, err := NewFileLogger(filepath.Join(t.TempDir(), "missing", "x.plog")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestFileLoggerFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.plog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	logger.Log(Event{ConnectionID: "conn"})
	if err := logger.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	events, err := ReadAll(path, Filter{})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events after Flush, want 1", len(events))
	}
}
