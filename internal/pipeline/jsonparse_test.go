package pipeline

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeModelJSONBare(t *testing.T) {
	var out []map[string]any
	err := decodeModelJSON("test", `[{"title": "one"}]`, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0]["title"] != "one" {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestDecodeModelJSONFenced(t *testing.T) {
	raw := "Here is the extraction:\n```json\n{\"relevance\": 0.9}\n```\nLet me know if you need more."
	var out map[string]float64
	if err := decodeModelJSON("test", raw, &out); err != nil {
		t.Fatalf("decode fenced: %v", err)
	}
	if out["relevance"] != 0.9 {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestDecodeModelJSONEmbeddedSpan(t *testing.T) {
	raw := `The requirements I found are [{"title": "a {braces} title"}] as requested.`
	var out []map[string]string
	if err := decodeModelJSON("test", raw, &out); err != nil {
		t.Fatalf("decode embedded: %v", err)
	}
	if len(out) != 1 || out[0]["title"] != "a {braces} title" {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestDecodeModelJSONUnwrapsObjectEnvelope(t *testing.T) {
	// Object-only JSON modes wrap array payloads under a single key.
	raw := `{"requirements": [{"title": "one"}, {"title": "two"}]}`
	var out []map[string]string
	if err := decodeModelJSON("test", raw, &out); err != nil {
		t.Fatalf("decode enveloped array: %v", err)
	}
	if len(out) != 2 || out[1]["title"] != "two" {
		t.Fatalf("unexpected result: %v", out)
	}

	fenced := "```json\n{\"items\": [{\"title\": \"three\"}]}\n```"
	out = nil
	if err := decodeModelJSON("test", fenced, &out); err != nil {
		t.Fatalf("decode fenced envelope: %v", err)
	}
	if len(out) != 1 || out[0]["title"] != "three" {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestDecodeModelJSONEnvelopeKeepsObjects(t *testing.T) {
	// A multi-key object is a payload, not an envelope.
	var out map[string]any
	if err := decodeModelJSON("test", `{"relevance": 0.9, "summary": "s"}`, &out); err != nil {
		t.Fatalf("decode object: %v", err)
	}
	if out["summary"] != "s" {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestDecodeModelJSONFailure(t *testing.T) {
	var out map[string]any
	err := decodeModelJSON("classification", strings.Repeat("not json ", 50), &out)
	if err == nil {
		t.Fatal("expected parse error")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if parseErr.Stage != "classification" {
		t.Fatalf("unexpected stage: %s", parseErr.Stage)
	}
	if len(parseErr.Snippet) > 200 {
		t.Fatalf("snippet should be capped at 200 chars, got %d", len(parseErr.Snippet))
	}
}
