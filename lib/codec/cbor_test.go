// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// sampleRecord mirrors the shape of a stored record that is also served
// as JSON: json tags, a map of bindings, and a timestamp.
type sampleRecord struct {
	Name     string            `json:"name"`
	Tags     map[string]string `json:"tags"`
	Created  time.Time         `json:"created"`
	Comment  string            `json:"comment,omitempty"`
	Revision uint64            `json:"revision"`
}

// diskOnly uses cbor tags, the convention for types that never reach
// the HTTP API.
type diskOnly struct {
	Version int `cbor:"version"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRecord{
		Name:     "library/app",
		Tags:     map[string]string{"latest": "sha256:aa", "v1": "sha256:bb"},
		Created:  time.Date(2026, 1, 15, 12, 0, 0, 123456789, time.UTC),
		Revision: 3,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Name != original.Name || decoded.Revision != original.Revision {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	if !decoded.Created.Equal(original.Created) {
		t.Errorf("Created = %v, want %v (sub-second precision lost?)", decoded.Created, original.Created)
	}
	if len(decoded.Tags) != 2 || decoded.Tags["v1"] != "sha256:bb" {
		t.Errorf("Tags = %v", decoded.Tags)
	}
}

func TestMarshalDeterministicMapOrder(t *testing.T) {
	tags := make(map[string]string)
	for _, tag := range []string{"v3", "latest", "v1", "stable", "v2"} {
		tags[tag] = "sha256:" + tag
	}
	record := sampleRecord{Name: "r", Tags: tags}

	first, err := Marshal(record)
	if err != nil {
		t.Fatal(err)
	}
	for range 20 {
		again, err := Marshal(record)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("Marshal output depends on map iteration order")
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	data, err := Marshal(sampleRecord{Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diagnostic, `"name"`) || strings.Contains(diagnostic, `"Name"`) {
		t.Errorf("json tag not used for field name: %s", diagnostic)
	}
	if strings.Contains(diagnostic, `"comment"`) {
		t.Errorf("omitempty field present: %s", diagnostic)
	}
}

func TestCBORTag(t *testing.T) {
	data, err := Marshal(diskOnly{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatal(err)
	}
	if diagnostic != `{"version": 1}` {
		t.Errorf("Diagnose = %s", diagnostic)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"version": 2, "future_field": "x"})
	if err != nil {
		t.Fatal(err)
	}
	var decoded diskOnly
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Version != 2 {
		t.Errorf("Version = %d, want 2", decoded.Version)
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"k": 1}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested value %T, want map[string]any", outer["nested"])
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var decoded sampleRecord
	if err := Unmarshal([]byte{0xff, 0xfe, 0xfd}, &decoded); err == nil {
		t.Error("expected error for invalid CBOR")
	}
}
