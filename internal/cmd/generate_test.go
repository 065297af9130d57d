package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseOverrides(t *testing.T) {
	overrides, err := parseOverrides([]string{"duration=30", "prompt=warm, slow piano"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if overrides["duration"] != "30" {
		t.Fatalf("expected duration=30, got %q", overrides["duration"])
	}
	if overrides["prompt"] != "warm, slow piano" {
		t.Fatalf("expected prompt to keep its commas, got %q", overrides["prompt"])
	}

	if _, err := parseOverrides([]string{"no-equals"}); err == nil {
		t.Fatal("expected error for pair without '='")
	}
	if _, err := parseOverrides([]string{"=value"}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestReadPayloadInputInline(t *testing.T) {
	payload, err := readPayloadInput(`{"prompt":"piano"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != `{"prompt":"piano"}` {
		t.Fatalf("payload changed: %s", payload)
	}

	if _, err := readPayloadInput("not json"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestReadPayloadInputFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.json")
	if err := os.WriteFile(path, []byte(`{"duration":30}`), 0644); err != nil {
		t.Fatal(err)
	}

	payload, err := readPayloadInput("@" + path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != `{"duration":30}` {
		t.Fatalf("unexpected payload: %s", payload)
	}

	if _, err := readPayloadInput("@" + filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := readPayloadInput("@"); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestResolveJobInputValidation(t *testing.T) {
	cases := []struct {
		name   string
		class  string
		input  string
		preset string
		sets   []string
	}{
		{name: "neither input nor preset"},
		{name: "both input and preset", input: `{}`, preset: "music-loop"},
		{name: "class with preset", class: "speech", preset: "music-loop"},
		{name: "set without preset", class: "speech", input: `{"text":"hi"}`, sets: []string{"a=b"}},
		{name: "input without class", input: `{"text":"hi"}`},
	}

	for _, tc := range cases {
		if _, _, _, err := resolveJobInput(nil, tc.class, tc.input, tc.preset, tc.sets, 0); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestResolveJobInputInlinePayload(t *testing.T) {
	class, payload, cost, err := resolveJobInput(nil, "speech", `{"text":"hello"}`, "", nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if class != "speech" {
		t.Fatalf("expected class speech, got %q", class)
	}
	if string(payload) != `{"text":"hello"}` {
		t.Fatalf("unexpected payload: %s", payload)
	}
	if cost != 2 {
		t.Fatalf("expected cost 2, got %d", cost)
	}
}
