package process

import (
	"encoding/json"
	"io"
	"maps"
	"strings"
	"time"
)

// Structure is an io.Writer that emits each write as a JSON log record with
// a timestamp and a fixed set of metadata fields.
type Structure struct {
	metadata map[string]string
	encoder  *json.Encoder
}

func NewStructure(w io.Writer, metadata map[string]string) *Structure {
	return &Structure{
		metadata: maps.Clone(metadata),
		encoder:  json.NewEncoder(w),
	}
}

// Write serializes the data as a JSON record. Trailing newlines and carriage
// returns are stripped from the message.
func (s *Structure) Write(data []byte) (int, error) {
	record := map[string]string{
		"message":   strings.TrimRight(string(data), "\r\n"),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	maps.Copy(record, s.metadata)

	if err := s.encoder.Encode(record); err != nil {
		return 0, err
	}
	return len(data), nil
}
