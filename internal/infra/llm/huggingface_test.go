package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func hfServer(t *testing.T, status int, body string) (*httptest.Server, *hfRequest) {
	t.Helper()
	var got hfRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gpt2" || r.Header.Get("Authorization") != "Bearer hf_secret" {
			http.Error(w, "unexpected request", http.StatusTeapot)
			return
		}
		json.NewDecoder(r.Body).Decode(&got) //nolint:errcheck
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestHuggingFace_Generate_StripsPromptPrefix(t *testing.T) {
	t.Parallel()

	prompt := "Be terse.\n\nUser: hi"
	srv, got := hfServer(t, http.StatusOK, `[{"generated_text":"Be terse.\n\nUser: hi   hello there \n"}]`)

	p := NewHuggingFaceProvider(srv.URL, "hf_secret", srv.Client())
	c, err := p.Generate(context.Background(), GenerateRequest{Model: "gpt2", Prompt: prompt, Temperature: 0.7})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if c.Text != "hello there" || c.Unrecognized {
		t.Errorf("unexpected completion %+v", c)
	}
	if got.Inputs != prompt || got.Parameters.MaxNewTokens != DefaultMaxTokens || got.Parameters.Temperature != 0.7 {
		t.Errorf("unexpected request body %+v", got)
	}
}

func TestHuggingFace_Generate_ObjectShape(t *testing.T) {
	t.Parallel()

	srv, _ := hfServer(t, http.StatusOK, `{"generated_text":"PROMPT answer "}`)
	p := NewHuggingFaceProvider(srv.URL, "hf_secret", srv.Client())
	c, err := p.Generate(context.Background(), GenerateRequest{Model: "gpt2", Prompt: "PROMPT"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if c.Text != "answer" {
		t.Errorf("expected 'answer', got %q", c.Text)
	}
}

func TestHuggingFace_Generate_HTTPError(t *testing.T) {
	t.Parallel()

	srv, _ := hfServer(t, http.StatusInternalServerError, "boom")
	p := NewHuggingFaceProvider(srv.URL, "hf_secret", srv.Client())
	_, err := p.Generate(context.Background(), GenerateRequest{Model: "gpt2", Prompt: "x"})
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if he.StatusCode != 500 || he.Body != "boom" {
		t.Errorf("unexpected error %+v", he)
	}
}

func TestHuggingFace_Generate_ErrorField(t *testing.T) {
	t.Parallel()

	srv, _ := hfServer(t, http.StatusOK, `{"error":"Model gpt2 is currently loading"}`)
	p := NewHuggingFaceProvider(srv.URL, "hf_secret", srv.Client())
	_, err := p.Generate(context.Background(), GenerateRequest{Model: "gpt2", Prompt: "x"})
	var le *LogicalError
	if !errors.As(err, &le) || le.Message != "Model gpt2 is currently loading" {
		t.Fatalf("expected LogicalError, got %v", err)
	}
}

func TestHuggingFace_Generate_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv, _ := hfServer(t, http.StatusOK, `{"generated_text":`)
	p := NewHuggingFaceProvider(srv.URL, "hf_secret", srv.Client())
	_, err := p.Generate(context.Background(), GenerateRequest{Model: "gpt2", Prompt: "x"})
	if !errors.Is(err, ErrResponseParse) {
		t.Fatalf("expected ErrResponseParse, got %v", err)
	}
}

func TestHuggingFace_Generate_UnrecognizedShape_ReturnsRawBody(t *testing.T) {
	t.Parallel()

	body := `{"labels":["a","b"]}`
	srv, _ := hfServer(t, http.StatusOK, body)
	p := NewHuggingFaceProvider(srv.URL, "hf_secret", srv.Client())
	c, err := p.Generate(context.Background(), GenerateRequest{Model: "gpt2", Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !c.Unrecognized || c.Text != body {
		t.Errorf("expected raw body as unrecognized completion, got %+v", c)
	}
}

func TestHuggingFace_Generate_ServerDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	p := NewHuggingFaceProvider(srv.URL, "hf_secret", nil)
	_, err := p.Generate(context.Background(), GenerateRequest{Model: "gpt2", Prompt: "x"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
}

func TestParseHFResponse_Shapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		kind hfShape
		text string
	}{
		{"list", `[{"generated_text":"a"},{"generated_text":"b"}]`, hfGenerated, "a"},
		{"object", `{"generated_text":"a"}`, hfGenerated, "a"},
		{"error string", `{"error":"bad"}`, hfErrorField, "bad"},
		{"error list", `{"error":["x","y"]}`, hfErrorField, `["x","y"]`},
		{"null error", `{"error":null}`, hfUnrecognized, ""},
		{"empty list", `[]`, hfUnrecognized, ""},
		{"list of strings", `["a"]`, hfUnrecognized, ""},
		{"scalar", `"hello"`, hfUnrecognized, ""},
	}
	for _, tc := range cases {
		got, err := parseHFResponse([]byte(tc.body))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if got.kind != tc.kind || got.text != tc.text {
			t.Errorf("%s: got %+v, want kind=%d text=%q", tc.name, got, tc.kind, tc.text)
		}
	}
}
