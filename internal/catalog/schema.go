package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaCache caches compiled payload schemas by challenge type.
var schemaCache sync.Map // map[domain.ChallengeType]*jsonschema.Schema

// payloadSchema returns the compiled schema for challenge type t.
func payloadSchema(t domain.ChallengeType) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*jsonschema.Schema), nil
	}

	raw, err := schemaFS.ReadFile("schemas/" + string(t) + ".json")
	if err != nil {
		return nil, fmt.Errorf("no schema for challenge type %q", t)
	}
	var def any
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse %s schema: %w", t, err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://trilhas/%s.json", t)
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", t, err)
	}

	schemaCache.Store(t, compiled)
	return compiled, nil
}

// decodePayload checks a YAML payload node against the schema of t, then
// decodes it and applies the checks a schema cannot express.
func decodePayload(t domain.ChallengeType, node *yaml.Node) (domain.Payload, error) {
	if node == nil || node.Kind == 0 {
		return nil, fmt.Errorf("payload is required")
	}

	var tree any
	if err := node.Decode(&tree); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON-compatible: %w", err)
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}

	schema, err := payloadSchema(t)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(parsed); err != nil {
		return nil, fmt.Errorf("payload schema: %w", err)
	}

	payload, err := domain.DecodePayload(t, data)
	if err != nil {
		return nil, err
	}
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func checkPayload(p domain.Payload) error {
	switch p := p.(type) {
	case *domain.QuizPayload:
		if p.AnswerIndex >= len(p.Choices) {
			return fmt.Errorf("answer_index %d out of range for %d choices", p.AnswerIndex, len(p.Choices))
		}
	case *domain.MatchPayload:
		lefts := make(map[string]bool, len(p.Pairs))
		rights := make(map[string]bool, len(p.Pairs))
		for _, pair := range p.Pairs {
			if lefts[pair.Left] {
				return fmt.Errorf("duplicate left item %q", pair.Left)
			}
			if rights[pair.Right] {
				return fmt.Errorf("duplicate right item %q", pair.Right)
			}
			lefts[pair.Left] = true
			rights[pair.Right] = true
		}
	}
	return nil
}
