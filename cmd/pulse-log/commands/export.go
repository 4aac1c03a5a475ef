package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pulse-protocol/pulse-go/pkg/log"
)

// RunExport exports the log file as jsonl or csv. An empty output writes to
// stdout.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return export(reader, format, w)
}

// sink receives exported events in file order.
type sink interface {
	write(event log.Event) error
	close() error
}

func newSink(format string, w io.Writer) (sink, error) {
	switch format {
	case "jsonl":
		return jsonlSink{enc: json.NewEncoder(w)}, nil
	case "csv":
		s := csvSink{w: csv.NewWriter(w)}
		return s, s.w.Write(csvHeader)
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func export(reader *log.Reader, format string, w io.Writer) error {
	s, err := newSink(format, w)
	if err != nil {
		return err
	}
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return s.close()
		}
		if err != nil {
			return fmt.Errorf("read event %d: %w", reader.Seen(), err)
		}
		if err := s.write(event); err != nil {
			return err
		}
	}
}

type jsonlSink struct {
	enc *json.Encoder
}

func (s jsonlSink) write(event log.Event) error { return s.enc.Encode(event) }

func (jsonlSink) close() error { return nil }

var csvHeader = []string{
	"timestamp", "connection_id", "role", "direction", "layer", "category",
	"type", "length", "family", "id",
}

type csvSink struct {
	w *csv.Writer
}

func (s csvSink) write(event log.Event) error {
	var length, family, id string
	if p := event.Packet; p != nil {
		length = strconv.FormatUint(uint64(p.Length), 10)
		family = strconv.FormatUint(uint64(p.Family), 10)
		id = strconv.FormatUint(uint64(p.ID), 10)
	}
	return s.w.Write([]string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.ConnectionID,
		event.LocalRole.String(),
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		typeLabel(event),
		length,
		family,
		id,
	})
}

func (s csvSink) close() error {
	s.w.Flush()
	return s.w.Error()
}
