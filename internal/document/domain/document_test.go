package domain

import "testing"

func TestNormalize(t *testing.T) {
	got := Normalize(map[string]any{
		"session_context": "  Erstgespräch  ",
		"homework":        nil,
		"resources":       3,
		"extra_field":     "ignored",
	})
	if len(got) != len(Fields) {
		t.Fatalf("len = %d, want %d", len(got), len(Fields))
	}
	if got["session_context"] != "Erstgespräch" {
		t.Errorf("session_context = %q", got["session_context"])
	}
	if got["homework"] != "" {
		t.Errorf("homework = %q, want empty", got["homework"])
	}
	if got["resources"] != "3" {
		t.Errorf("resources = %q, want 3", got["resources"])
	}
	if _, ok := got["extra_field"]; ok {
		t.Error("unknown key kept")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []map[string]any{
		nil,
		{},
		{"interventions": " Atemübung ", "risk_assessment": "keine Hinweise"},
		{"progress_evaluation": true, "x": "y"},
	}
	for _, in := range inputs {
		once := Normalize(in)
		generic := make(map[string]any, len(once))
		for k, v := range once {
			generic[k] = v
		}
		twice := Normalize(generic)
		for _, f := range Fields {
			if once[f] != twice[f] {
				t.Errorf("field %s: %q != %q", f, once[f], twice[f])
			}
		}
		if len(twice) != len(Fields) {
			t.Errorf("len = %d", len(twice))
		}
	}
}
