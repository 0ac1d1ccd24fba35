package reducer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/go-go-golems/agentic-research/pkg/events"
	"github.com/go-go-golems/agentic-research/pkg/usage"
	"github.com/pkg/errors"
)

var debugLogFilenames = map[usage.Operation]string{
	usage.OperationResearch:        "raw_events_research.json",
	usage.OperationCritique:        "raw_events_critique_after_research.json",
	usage.OperationCritiqueOnly:    "raw_events_critique.json",
	usage.OperationFinalReport:     "raw_events_final_report.json",
	usage.OperationFinalReportOnly: "raw_events_final_report_only.json",
	usage.OperationIterative:       "raw_events_iterative.json",
}

// DebugLogFilename is the name of the raw event file written for op.
func DebugLogFilename(op usage.Operation) string {
	if name, ok := debugLogFilenames[op]; ok {
		return name
	}
	return fmt.Sprintf("raw_events_%s.json", op)
}

// DebugLog is the ordered, serializable trail of non-ping events.
type DebugLog struct {
	entries []json.RawMessage
}

func (d *DebugLog) Len() int {
	return len(d.entries)
}

func (d *DebugLog) Entries() []json.RawMessage {
	return append([]json.RawMessage{}, d.entries...)
}

// Append serializes e. It never fails: events without a structured form are
// captured by type name and string representation, and if that fails as well
// a serialization failure marker takes their place.
func (d *DebugLog) Append(e events.Event) {
	d.entries = append(d.entries, serializeEvent(e))
}

type degradedEntry struct {
	Type      string `json:"type"`
	StrRepr   string `json:"str_repr"`
	EventType string `json:"event_type"`
}

type failedEntry struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func typeName(e events.Event) string {
	t := reflect.TypeOf(e)
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

func marshalEvent(e events.Event) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while marshaling: %v", r)
		}
	}()
	return json.Marshal(e)
}

func serializeEvent(e events.Event) json.RawMessage {
	if p := e.Payload(); len(p) > 0 && json.Valid(p) {
		return append(json.RawMessage{}, p...)
	}

	b, err := marshalEvent(e)
	if err == nil {
		return b
	}

	repr, reprErr := events.Repr(e)
	if reprErr == nil {
		eventType := string(e.Type())
		if eventType == "" {
			eventType = "unknown"
		}
		b, mErr := json.Marshal(degradedEntry{Type: typeName(e), StrRepr: repr, EventType: eventType})
		if mErr == nil {
			return b
		}
	}

	b, _ = json.Marshal(failedEntry{
		Error: fmt.Sprintf("Failed to serialize event: %v", err),
		Type:  typeName(e),
	})
	return b
}

// Save writes the log as an indented JSON array to dir/filename.
func (d *DebugLog) Save(dir, filename string) (string, error) {
	entries := d.entries
	if entries == nil {
		entries = []json.RawMessage{}
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return "", errors.Wrap(err, "failed to encode raw events")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	return path, nil
}
