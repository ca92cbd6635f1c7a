package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}

	for _, section := range []string{"llm", "agent", "permissions", "sessions", "tools", "logging"} {
		if !strings.Contains(string(data), `"`+section+`"`) {
			t.Errorf("schema does not mention %q section", section)
		}
	}
}

func TestJSONSchemaIsCached(t *testing.T) {
	first, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	second, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	if &first[0] != &second[0] {
		t.Errorf("expected cached schema bytes to be reused")
	}
}
