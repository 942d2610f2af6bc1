package macro

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// StripControl returns the events with transport control records removed.
// The input is not modified.
func StripControl(events []Event) []Event {
	result := make([]Event, 0, len(events))
	for _, e := range events {
		if e.IsControl() {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Save writes the events to w as an indented JSON array. Control records
// never reach disk; they only have meaning inside a live capture session.
func Save(w io.Writer, events []Event) error {
	data, err := json.MarshalIndent(StripControl(events), "", "  ")
	if err != nil {
		return errors.Wrap(err, "serializing events")
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return errors.Wrap(err, "writing events")
}

// SaveFile writes the events to the named file, replacing it if it exists.
func SaveFile(path string, events []Event) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating save file")
	}
	if err := Save(f, events); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "closing save file")
}

// Load reads a JSON array of events from r. Records that cannot be decoded
// are skipped; the count of skipped records is returned alongside the
// events that survived. A stream that is not a JSON array is an error.
func Load(r io.Reader) ([]Event, int, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, 0, errors.Wrap(err, "parsing event file")
	}

	events := make([]Event, 0, len(raw))
	skipped := 0
	for _, msg := range raw {
		var e Event
		if err := json.Unmarshal(msg, &e); err != nil {
			skipped++
			continue
		}
		events = append(events, e)
	}
	return events, skipped, nil
}

// LoadFile reads events from the named file.
func LoadFile(path string) ([]Event, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrap(err, "opening event file")
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}
