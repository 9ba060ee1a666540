package events

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"pumpscope/internal/logger"
)

const eventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["symbol", "date", "hour", "exchange"],
    "properties": {
      "symbol":   {"type": "string", "minLength": 1},
      "date":     {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
      "hour":     {"type": "string", "pattern": "^[0-9]{1,2}:[0-9]{2}$"},
      "exchange": {"type": "string", "minLength": 1},
      "group":    {"type": "string"}
    }
  }
}`

var requiredColumns = []string{"symbol", "date", "hour", "exchange"}

// Load reads events from a .csv, .json or .yaml/.yml file. CSV rows whose date
// or hour cannot be parsed are skipped with a warning; JSON and YAML documents
// must satisfy the event schema as a whole.
func Load(path string) ([]Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events failed: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSON(raw)
	case ".yaml", ".yml":
		return decodeYAML(raw)
	default:
		return decodeCSV(bytes.NewReader(raw))
	}
}

func decodeCSV(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(head))
	for i, col := range head {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("events csv missing column %q", col)
		}
	}
	group, hasGroup := idx["group"]
	field := func(rec []string, i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var out []Event
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("events csv line %d: %w", line, err)
		}
		ev := Event{
			Symbol:   strings.ToUpper(field(rec, idx["symbol"])),
			Date:     field(rec, idx["date"]),
			Hour:     field(rec, idx["hour"]),
			Exchange: field(rec, idx["exchange"]),
		}
		if hasGroup {
			ev.Group = field(rec, group)
		}
		if ev.Symbol == "" {
			continue
		}
		if _, err := ev.PumpTime(); err != nil {
			logger.Warnf("skip events csv line %d: %v", line, err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeJSON(raw []byte) ([]Event, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse events json failed: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	var out []Event
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return normalize(out)
}

func decodeYAML(raw []byte) ([]Event, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse events yaml failed: %w", err)
	}
	doc, err := plainYAML(&root)
	if err != nil {
		return nil, fmt.Errorf("parse events yaml failed: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	var out []Event
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("parse events yaml failed: %w", err)
	}
	return normalize(out)
}

// plainYAML converts a node tree into the JSON-shaped values the schema
// validator expects. Timestamps keep their source text, so an unquoted
// 2021-05-01 stays a date string.
func plainYAML(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return plainYAML(n.Content[0])
	case yaml.AliasNode:
		return plainYAML(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := plainYAML(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := plainYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	default:
		if n.ShortTag() == "!!timestamp" {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func normalize(list []Event) ([]Event, error) {
	for i := range list {
		list[i].Symbol = strings.ToUpper(strings.TrimSpace(list[i].Symbol))
		if _, err := list[i].PumpTime(); err != nil {
			return nil, err
		}
	}
	return list, nil
}

var compiledSchema *jsonschema.Schema

func schema() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("events.json", strings.NewReader(eventSchema)); err != nil {
		return nil, err
	}
	sch, err := compiler.Compile("events.json")
	if err != nil {
		return nil, err
	}
	compiledSchema = sch
	return sch, nil
}

func validateDocument(doc any) error {
	sch, err := schema()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("events do not match schema: %w", err)
	}
	return nil
}
