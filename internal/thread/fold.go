package thread

import (
	"bytes"
	"encoding/json"
)

// Speaker is the two-sided role a turn is attributed to. SpeakerSystem only
// ever appears on the seed turn.
type Speaker string

const (
	SpeakerSystem Speaker = "system"
	SpeakerHuman  Speaker = "human"
	SpeakerGPT    Speaker = "gpt"
)

// ToolResultKey is the block field a record's tool result is attached under.
const ToolResultKey = "toolUseResult"

// Block is one typed content block (text, tool_use, tool_result, thinking...).
// Unknown fields are preserved.
type Block map[string]any

// Turn is one or more consecutive same-speaker records folded together.
type Turn struct {
	Speaker Speaker `json:"from"`
	Blocks  []Block `json:"value"`
}

// Metadata closes a folded conversation.
type Metadata struct {
	BatchID   string   `json:"id"`
	PathID    string   `json:"path_id"`
	Models    []string `json:"model"`
	Timestamp string   `json:"timestamp"`
	TurnCount int      `json:"conversation_turns"`
}

// Conversation is the folded output of one batch, serialized in the
// ShareGPT layout.
type Conversation struct {
	Turns    []Turn   `json:"conversations"`
	Metadata Metadata `json:"meta_data"`
}

// TextBlock builds a plain text block.
func TextBlock(text string) Block {
	return Block{"type": "text", "text": text}
}

// Folder turns a linearized record sequence into a Conversation. The seed turn
// is copied on construction and on every fold, so a Folder is safe to share
// across goroutines.
type Folder struct {
	seed Turn
}

// NewFolder returns a Folder that opens every conversation with seed.
func NewFolder(seed Turn) *Folder {
	return &Folder{seed: cloneTurn(seed)}
}

// Seed returns a copy of the leading turn.
func (f *Folder) Seed() Turn {
	return cloneTurn(f.seed)
}

// Fold folds ordered into a conversation for the batch identified by pathID
// and batchID. It returns false when no record has a recognized role, which
// callers must treat as "no conversation" rather than an empty one.
func (f *Folder) Fold(pathID, batchID string, ordered []Record) (*Conversation, bool) {
	turns := []Turn{cloneTurn(f.seed)}
	var models []string
	seenModel := make(map[string]struct{})
	included := 0

	for _, rec := range ordered {
		speaker, ok := speakerFor(rec.Role)
		if !ok {
			continue
		}
		blocks, ok := extractBlocks(rec)
		if !ok {
			continue
		}
		included++

		if rec.Model != "" {
			if _, dup := seenModel[rec.Model]; !dup {
				seenModel[rec.Model] = struct{}{}
				models = append(models, rec.Model)
			}
		}

		last := &turns[len(turns)-1]
		if last.Speaker == speaker {
			last.Blocks = append(last.Blocks, blocks...)
			continue
		}
		turns = append(turns, Turn{Speaker: speaker, Blocks: blocks})
	}

	if included == 0 {
		return nil, false
	}

	if models == nil {
		models = []string{}
	}
	return &Conversation{
		Turns: turns,
		Metadata: Metadata{
			BatchID:   batchID,
			PathID:    pathID,
			Models:    models,
			Timestamp: lastTimestamp(ordered),
			TurnCount: len(turns),
		},
	}, true
}

func speakerFor(role string) (Speaker, bool) {
	switch role {
	case "user":
		return SpeakerHuman, true
	case "assistant":
		return SpeakerGPT, true
	default:
		return "", false
	}
}

// extractBlocks returns the record's content as blocks, with the tool result
// (if any) attached to a copy of the last block. Absent or null content, or
// content that is neither a string nor an array, yields false. An empty array
// yields an empty, non-nil slice: the record still takes its speaker's turn.
func extractBlocks(rec Record) ([]Block, bool) {
	trimmed := bytes.TrimSpace(rec.Content)
	if len(trimmed) == 0 {
		return nil, false
	}

	var blocks []Block
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, false
		}
		blocks = []Block{TextBlock(text)}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false
		}
		blocks = make([]Block, 0, len(items))
		for _, item := range items {
			if b, ok := decodeBlock(item); ok {
				blocks = append(blocks, b)
			}
		}
	default:
		return nil, false
	}

	// A tool result needs a block to ride on; with none it is dropped.
	if len(rec.ToolResult) > 0 && len(blocks) > 0 {
		last := cloneBlock(blocks[len(blocks)-1])
		last[ToolResultKey] = json.RawMessage(rec.ToolResult)
		blocks[len(blocks)-1] = last
	}
	return blocks, true
}

func decodeBlock(raw json.RawMessage) (Block, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	switch x := v.(type) {
	case map[string]any:
		return Block(x), true
	case string:
		return TextBlock(x), true
	default:
		return nil, false
	}
}

func lastTimestamp(ordered []Record) string {
	for i := len(ordered) - 1; i >= 0; i-- {
		if ordered[i].Timestamp != "" {
			return ordered[i].Timestamp
		}
	}
	return ""
}

func cloneBlock(b Block) Block {
	out := make(Block, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	return out
}

func cloneTurn(t Turn) Turn {
	blocks := make([]Block, len(t.Blocks))
	for i, b := range t.Blocks {
		blocks[i] = cloneBlock(b)
	}
	return Turn{Speaker: t.Speaker, Blocks: blocks}
}
