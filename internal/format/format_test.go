package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name  string   `json:"name" yaml:"name"`
	Count int      `json:"count" yaml:"count"`
	Tags  []string `json:"tags" yaml:"tags"`
}

func TestFormatters(t *testing.T) {
	payload := sample{Name: "wall", Count: 2, Tags: []string{"a", "b"}}

	tests := []struct {
		name string
		want string
	}{
		{name: "json", want: `{"name":"wall","count":2,"tags":["a","b"]}` + "\n"},
		{name: "json-pretty", want: "{\n  \"name\": \"wall\",\n  \"count\": 2,\n  \"tags\": [\n    \"a\",\n    \"b\"\n  ]\n}\n"},
		{name: "yaml", want: "name: wall\ncount: 2\ntags:\n  - a\n  - b\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ByName(tc.name)
			if err != nil {
				t.Fatalf("formatter: %v", err)
			}
			var buf bytes.Buffer
			if err := f.Write(&buf, payload); err != nil {
				t.Fatalf("write: %v", err)
			}
			if buf.String() != tc.want {
				t.Fatalf("unexpected output:\n%s\nwant:\n%s", buf.String(), tc.want)
			}
		})
	}
}

func TestByNameRejectsUnknown(t *testing.T) {
	if _, err := ByName("xml"); err == nil || !strings.Contains(err.Error(), "xml") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}
