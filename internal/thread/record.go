package thread

import (
	"bytes"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// ErrNotSequence is returned when a batch payload is not a JSON array at all.
// Individual malformed entries inside an array never produce an error.
var ErrNotSequence = goerr.New("batch is not an ordered sequence of records")

// Record is a single message event decoded from one log entry.
type Record struct {
	ID         string
	ParentID   string
	Role       string
	Content    json.RawMessage // string or array of content blocks
	ToolResult json.RawMessage // nil when the entry carried no tool result
	Timestamp  string
	Model      string

	// Position is the zero-based offset of the entry in its batch.
	Position int
	// Malformed is set when the entry was not a JSON object.
	Malformed bool
	// InvalidParent is set when a parent reference is present but is not a
	// string. Such a record is neither a root nor anyone's child.
	InvalidParent bool
}

// HasID reports whether the record can take part in graph traversal.
func (r Record) HasID() bool {
	return r.ID != ""
}

// IsRoot reports whether the record starts an independent tree.
func (r Record) IsRoot() bool {
	return r.HasID() && r.ParentID == "" && !r.InvalidParent
}

// Batch is one logical log (a single session file) processed independently.
type Batch struct {
	PathID  string
	BatchID string
	Records []Record
}

// message is the nested payload. Claude Code nests role and content under
// "message"; flatter exports keep them at the top level.
type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Model   string          `json:"model"`
}

// DecodeRecord converts one raw JSON value into a Record. It never fails:
// anything that is not an object comes back flagged Malformed, and fields of
// the wrong type are treated as absent.
func DecodeRecord(raw json.RawMessage, pos int) Record {
	rec := Record{Position: pos}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		rec.Malformed = true
		return rec
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		rec.Malformed = true
		return rec
	}

	// uuid/parentUuid/toolUseResult are the Claude Code spellings, gateway
	// logs use id/parentId, generic exports id/parent_id/tool_result.
	rec.ID = firstString(fields, "uuid", "id")
	rec.ParentID, rec.InvalidParent = parentRef(fields, "parentUuid", "parent_id", "parentId")
	rec.Timestamp = firstString(fields, "timestamp")
	rec.ToolResult = firstValue(fields, "toolUseResult", "tool_result")

	var msg message
	if raw, ok := fields["message"]; ok && isObject(raw) {
		_ = json.Unmarshal(raw, &msg)
	} else {
		msg.Role = firstString(fields, "role")
		msg.Content = firstValue(fields, "content")
		msg.Model = firstString(fields, "model")
	}
	rec.Role = msg.Role
	rec.Model = msg.Model
	if !isNull(msg.Content) {
		rec.Content = msg.Content
	}

	return rec
}

// DecodeRecords decodes a sequence of raw entries, keeping their order.
func DecodeRecords(raws []json.RawMessage) []Record {
	records := make([]Record, len(raws))
	for i, raw := range raws {
		records[i] = DecodeRecord(raw, i)
	}
	return records
}

// ParseBatch decodes a JSON array of entries. A payload that is not an array
// is a caller contract violation and returns ErrNotSequence.
func ParseBatch(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, goerr.Wrap(ErrNotSequence, "expected a JSON array", goerr.V("size", len(data)))
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, goerr.Wrap(ErrNotSequence, "failed to decode batch array", goerr.V("cause", err.Error()))
	}
	return DecodeRecords(raws), nil
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// parentRef returns the first non-empty string parent reference. Absent, null
// and "" all mean "no parent"; any other JSON type is reported as invalid.
func parentRef(fields map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", true
		}
		if s != "" {
			return s, false
		}
	}
	return "", false
}

func firstValue(fields map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if raw, ok := fields[k]; ok && !isNull(raw) {
			return raw
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}
