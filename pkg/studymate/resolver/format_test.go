package resolver

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestFinalizeRewritesMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "double asterisk to single",
			in:   "The answer is **x = 5**.",
			want: "The answer is *x = 5*.",
		},
		{
			name: "double underscore to single",
			in:   "This is __important__.",
			want: "This is _important_.",
		},
		{
			name: "heading becomes bold line",
			in:   "## Step 1\nAdd 5 to both sides.",
			want: "*Step 1*\nAdd 5 to both sides.",
		},
		{
			name: "dash bullets become dots",
			in:   "- first\n- second",
			want: "• first\n• second",
		},
		{
			name: "button tags stripped",
			in:   "Pick one:\n[[buttons: More examples | New topic]]\nDone.",
			want: "Pick one:\nDone.",
		},
		{
			name: "crlf normalized",
			in:   "line one\r\nline two",
			want: "line one\nline two",
		},
		{
			name: "surrounding whitespace trimmed",
			in:   "  hello  \n",
			want: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Finalize(OutputResult{Type: TypeAnswer, Content: tt.in})
			if err != nil {
				t.Fatalf("Finalize error: %v", err)
			}
			if got.Content != tt.want {
				t.Errorf("content = %q, want %q", got.Content, tt.want)
			}
		})
	}
}

func TestFinalizeRejectsContractViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   OutputResult
	}{
		{name: "unknown type", in: OutputResult{Type: "verdict", Content: "x"}},
		{name: "empty type", in: OutputResult{Content: "x"}},
		{name: "empty content", in: OutputResult{Type: TypeAnswer, Content: "   "}},
		{name: "content reduced to nothing", in: OutputResult{Type: TypeAnswer, Content: "[[buttons: a | b]]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Finalize(tt.in)
			if !errors.Is(err, ErrMalformedOutput) {
				t.Errorf("err = %v, want ErrMalformedOutput", err)
			}
		})
	}
}

func TestFinalizeOutputNeverContainsDoubleEmphasis(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"**bold** then **more bold**",
		"mixed **bold** and *single*",
		"### Heading\n**emphasis**",
	}
	for _, in := range inputs {
		got, err := Finalize(OutputResult{Type: TypeAnswer, Content: in})
		if err != nil {
			t.Fatalf("Finalize(%q) error: %v", in, err)
		}
		if strings.Contains(got.Content, "**") {
			t.Errorf("double emphasis leaked through: %q", got.Content)
		}
	}
}

func TestOutputResultMarshalsExactlyTwoFields(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(OutputResult{Type: TypeClarification, Content: "which subject?"})
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 {
		t.Fatalf("marshaled fields = %v, want exactly type and content", fields)
	}
	if fields["type"] != "clarification" || fields["content"] != "which subject?" {
		t.Errorf("unexpected field values: %v", fields)
	}
}

func TestSafeFallbackSatisfiesContract(t *testing.T) {
	t.Parallel()

	out := SafeFallback("Ali")
	if _, err := Finalize(out); err != nil {
		t.Errorf("safe fallback must always pass Finalize: %v", err)
	}
	if !strings.Contains(out.Content, "Ali") {
		t.Error("fallback should address the student by name")
	}
}
