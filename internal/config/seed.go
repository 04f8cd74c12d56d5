package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

var ErrSeedInvalid = goerr.New("invalid seed turn")

// seedFile is the YAML form of the leading turn. Either Value (explicit
// blocks) or Text (a single text block) must be set.
type seedFile struct {
	From  string           `yaml:"from"`
	Text  string           `yaml:"text"`
	Value []map[string]any `yaml:"value"`
}

// DefaultSeed is used when no seed file is configured.
func DefaultSeed() thread.Turn {
	return thread.Turn{
		Speaker: thread.SpeakerSystem,
		Blocks:  []thread.Block{thread.TextBlock("")},
	}
}

// LoadSeed reads the leading turn every conversation starts with. A .jsonl
// path is treated as a previously exported conversation file and its last
// line's first turn is reused; anything else is parsed as YAML.
func LoadSeed(path string) (thread.Turn, error) {
	if path == "" {
		return DefaultSeed(), nil
	}
	path = ExpandHome(path)

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return loadSeedFromExport(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return thread.Turn{}, goerr.Wrap(err, "failed to read seed file", goerr.V("path", path))
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return thread.Turn{}, goerr.Wrap(err, "failed to parse seed YAML", goerr.V("path", path))
	}

	turn := thread.Turn{Speaker: thread.SpeakerSystem}
	if sf.From != "" {
		turn.Speaker = thread.Speaker(sf.From)
	}
	for _, b := range sf.Value {
		turn.Blocks = append(turn.Blocks, thread.Block(b))
	}
	if len(turn.Blocks) == 0 && sf.Text != "" {
		turn.Blocks = []thread.Block{thread.TextBlock(sf.Text)}
	}

	if err := validateSeed(turn); err != nil {
		return thread.Turn{}, goerr.Wrap(err, "seed file rejected", goerr.V("path", path))
	}
	return turn, nil
}

type exportLine struct {
	Conversations []struct {
		From  string            `json:"from"`
		Value []json.RawMessage `json:"value"`
	} `json:"conversations"`
}

func loadSeedFromExport(path string) (thread.Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return thread.Turn{}, goerr.Wrap(err, "failed to open seed export", goerr.V("path", path))
	}
	defer f.Close()

	var last []byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) > 0 {
			last = append(last[:0], line...)
		}
	}
	if err := scanner.Err(); err != nil {
		return thread.Turn{}, goerr.Wrap(err, "failed to scan seed export", goerr.V("path", path))
	}
	if last == nil {
		return thread.Turn{}, goerr.Wrap(ErrSeedInvalid, "seed export is empty", goerr.V("path", path))
	}

	var el exportLine
	if err := json.Unmarshal(last, &el); err != nil {
		return thread.Turn{}, goerr.Wrap(err, "failed to parse seed export line", goerr.V("path", path))
	}
	if len(el.Conversations) == 0 {
		return thread.Turn{}, goerr.Wrap(ErrSeedInvalid, "seed export has no turns", goerr.V("path", path))
	}

	first := el.Conversations[0]
	turn := thread.Turn{Speaker: thread.Speaker(first.From)}
	for _, raw := range first.Value {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var b map[string]any
		if err := dec.Decode(&b); err != nil {
			return thread.Turn{}, goerr.Wrap(ErrSeedInvalid, "seed block is not an object", goerr.V("path", path))
		}
		turn.Blocks = append(turn.Blocks, thread.Block(b))
	}

	if err := validateSeed(turn); err != nil {
		return thread.Turn{}, goerr.Wrap(err, "seed export rejected", goerr.V("path", path))
	}
	return turn, nil
}

func validateSeed(turn thread.Turn) error {
	switch turn.Speaker {
	case thread.SpeakerSystem, thread.SpeakerHuman, thread.SpeakerGPT:
	default:
		return goerr.Wrap(ErrSeedInvalid, "unknown speaker", goerr.V("from", string(turn.Speaker)))
	}
	if len(turn.Blocks) == 0 {
		return goerr.Wrap(ErrSeedInvalid, "seed has no content")
	}
	return nil
}

// ExpandHome resolves a leading "~/" against the user's home directory.
func ExpandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
