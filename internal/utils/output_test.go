package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type sampleStatus struct {
	Pending int    `json:"pending" yaml:"pending"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, sampleStatus{Pending: 3, Error: "push failed"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var got sampleStatus
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if got.Pending != 3 || got.Error != "push failed" {
		t.Errorf("decoded %+v", got)
	}
	if !strings.HasSuffix(buf.String(), "}\n") {
		t.Errorf("JSON output should end with a newline, got %q", buf.String())
	}
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatYAML, sampleStatus{Pending: 1}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if !strings.Contains(buf.String(), "pending: 1") {
		t.Errorf("YAML output = %q", buf.String())
	}
	var got sampleStatus
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
}

func TestWrite_TextRejected(t *testing.T) {
	if err := Write(&bytes.Buffer{}, FormatText, sampleStatus{}); err == nil {
		t.Error("Write() with FormatText should fail")
	}
}

func TestMarshalJSON_Error(t *testing.T) {
	if _, err := MarshalJSON(make(chan int)); err == nil {
		t.Error("MarshalJSON() of a channel should fail")
	}
}
