package resolver

import (
	"strings"
	"testing"
)

func TestTokenSignature(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "drops stopwords and short tokens",
			text: "can you help me with the equation of a line",
			want: []string{"equation", "line"},
		},
		{
			name: "deduplicates and sorts",
			text: "essay essay about an essay structure",
			want: []string{"essay", "structure"},
		},
		{
			name: "keeps digit tokens",
			text: "solve 2x + 15",
			want: []string{"15", "2x", "solve"},
		},
		{
			name: "empty input",
			text: "  ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := TokenSignature(tt.text)
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("TokenSignature(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectFirstMessageNeverShifts(t *testing.T) {
	t.Parallel()

	d := NewTopicDetector(0)
	shift, tag := d.Detect("solve 2x + 5 = 15", "")
	if shift {
		t.Error("first message must not shift")
	}
	if tag == "" {
		t.Error("first message should initialize the topic tag")
	}
}

func TestDetectMathToEssayShifts(t *testing.T) {
	t.Parallel()

	d := NewTopicDetector(0)
	_, tag := d.Detect("solve 2x + 5 = 15", "")

	shift, newTag := d.Detect("help me write an essay about the french revolution", tag)
	if !shift {
		t.Fatal("math to essay must be detected as a topic shift")
	}
	if newTag == tag {
		t.Error("shift must produce a new topic tag")
	}
}

func TestDetectShortCategoryChangeShifts(t *testing.T) {
	t.Parallel()

	d := NewTopicDetector(0)
	_, tag := d.Detect("solve 2x + 5 = 15", "")

	// Two content tokens, but a clear subject change: must still shift.
	shift, newTag := d.Detect("write me an essay", tag)
	if !shift {
		t.Fatal("short message with a different subject category must shift")
	}
	if !strings.Contains(newTag, "essay") {
		t.Errorf("new tag = %q, want the essay topic", newTag)
	}
}

func TestDetectSameSubjectNeverShifts(t *testing.T) {
	t.Parallel()

	d := NewTopicDetector(0)
	_, tag := d.Detect("solve this equation for x", "")

	// Different tokens, same math category.
	shift, merged := d.Detect("now find the derivative of the function", tag)
	if shift {
		t.Error("two math messages must not shift even with zero token overlap")
	}
	if !strings.Contains(merged, "derivative") {
		t.Errorf("tag should absorb new tokens, got %q", merged)
	}
}

func TestDetectShortFollowUpKeepsTopic(t *testing.T) {
	t.Parallel()

	d := NewTopicDetector(0)
	_, tag := d.Detect("explain the french revolution causes", "")

	shift, kept := d.Detect("and then?", tag)
	if shift {
		t.Error("short follow-up must not shift")
	}
	if kept != tag {
		t.Errorf("short follow-up must keep the tag, got %q want %q", kept, tag)
	}
}

func TestDetectHighOverlapKeepsTopic(t *testing.T) {
	t.Parallel()

	d := NewTopicDetector(0)
	_, tag := d.Detect("explain the french revolution causes", "")

	shift, _ := d.Detect("more details french revolution causes please", tag)
	if shift {
		t.Error("high token overlap must not shift")
	}
}

func TestJaccard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{name: "identical", a: []string{"x", "y"}, b: []string{"x", "y"}, want: 1},
		{name: "disjoint", a: []string{"x"}, b: []string{"y"}, want: 0},
		{name: "half", a: []string{"x", "y"}, b: []string{"x", "z"}, want: 1.0 / 3.0},
		{name: "empty side", a: nil, b: []string{"x"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := jaccard(tt.a, tt.b); got != tt.want {
				t.Errorf("jaccard(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSetSignatureReplacesDefault(t *testing.T) {
	t.Parallel()

	d := NewTopicDetector(0)
	d.SetSignature(func(string) []string { return []string{"fixed", "sig", "nal"} })

	shift, tag := d.Detect("whatever text", "")
	if shift || tag != "fixed sig nal" {
		t.Errorf("custom signature not applied: shift=%v tag=%q", shift, tag)
	}
}
