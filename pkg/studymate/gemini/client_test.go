package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/studymate-ai/studymate/pkg/studymate/resolver"
)

func candidateResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + mustJSON(text) + `}]},"finishReason":"STOP"}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", Model: "gemini-2.0-flash", BaseURL: srv.URL}, nil)
}

func TestGenerateSendsTaskAndHistory(t *testing.T) {
	t.Parallel()

	var got request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(candidateResponse("x = 5")))
	})

	req := resolver.GenerateRequest{
		Task:        "solve 2x + 5 = 15",
		StudentName: "Ali",
		Context: []resolver.Turn{{
			Message: resolver.InboundMessage{Text: "what is algebra"},
			Output:  resolver.OutputResult{Type: resolver.TypeAnswer, Content: "Algebra works with unknowns."},
		}},
	}

	out, err := client.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "x = 5" {
		t.Errorf("out = %q", out)
	}

	// One user/model pair from history plus the task itself.
	if len(got.Contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(got.Contents))
	}
	if got.Contents[0].Role != "user" || got.Contents[1].Role != "model" || got.Contents[2].Role != "user" {
		t.Errorf("roles = %s/%s/%s", got.Contents[0].Role, got.Contents[1].Role, got.Contents[2].Role)
	}
	if got.Contents[2].Parts[0].Text != "solve 2x + 5 = 15" {
		t.Errorf("task = %q", got.Contents[2].Parts[0].Text)
	}
	if got.SystemInstruction == nil {
		t.Error("system instruction missing")
	}
}

func TestGenerateAttachesInlineImage(t *testing.T) {
	t.Parallel()

	var got request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(candidateResponse("It is a triangle.")))
	})

	_, err := client.Generate(context.Background(), resolver.GenerateRequest{
		Task:      "solve this",
		Image:     []byte{0xFF, 0xD8, 0xFF},
		ImageMIME: "image/jpeg",
	})
	if err != nil {
		t.Fatal(err)
	}

	parts := got.Contents[len(got.Contents)-1].Parts
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want text + inline image", len(parts))
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/jpeg" {
		t.Errorf("inline data missing or wrong mime: %+v", parts[1].InlineData)
	}
	if parts[1].InlineData.Data == "" {
		t.Error("image bytes not base64-encoded into the request")
	}
}

func TestGenerateAPIErrorSurfacesMessage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := client.Generate(context.Background(), resolver.GenerateRequest{Task: "anything"})
	if err == nil {
		t.Fatal("want error on 429")
	}
	if got := err.Error(); !strings.Contains(got, "quota exceeded") {
		t.Errorf("error should carry the API message, got %q", got)
	}
}

func TestGenerateEmptyCandidates(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := client.Generate(context.Background(), resolver.GenerateRequest{Task: "anything"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestJudgeSufficiency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		verdict string
		want    bool
	}{
		{name: "sufficient", verdict: "SUFFICIENT", want: true},
		{name: "sufficient with noise", verdict: "sufficient.", want: true},
		{name: "insufficient", verdict: "INSUFFICIENT", want: false},
		{name: "garbage", verdict: "maybe?", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var req request
				json.NewDecoder(r.Body).Decode(&req)
				if req.GenerationConfig == nil || req.GenerationConfig.MaxOutputTokens != 8 {
					t.Error("judgment call should cap output tokens")
				}
				w.Write([]byte(candidateResponse(tt.verdict)))
			})

			got, err := client.JudgeSufficiency(context.Background(), "explain photosynthesis")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("verdict %q parsed as %v, want %v", tt.verdict, got, tt.want)
			}
		})
	}
}
