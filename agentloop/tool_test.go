package agentloop

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

// testTool is a configurable in-test Tool implementation.
type testTool struct {
	name        string
	desc        string
	params      map[string]ParamSpec
	stream      bool
	streamParam string
	exec        func(ctx context.Context, params map[string]string) (string, error)
}

func (t *testTool) Name() string                      { return t.name }
func (t *testTool) Description() string               { return t.desc }
func (t *testTool) Parameters() map[string]ParamSpec  { return t.params }
func (t *testTool) Streaming() bool                   { return t.stream }
func (t *testTool) StreamParam() string               { return t.streamParam }
func (t *testTool) Execute(ctx context.Context, params map[string]string) (string, error) {
	if t.exec == nil {
		return "", nil
	}
	return t.exec(ctx, params)
}

func echoTool() *testTool {
	return &testTool{
		name: "echo",
		desc: "Echo the input back.",
		params: map[string]ParamSpec{
			"text": {Description: "Text to echo", Required: true},
		},
		exec: func(_ context.Context, params map[string]string) (string, error) {
			return params["text"], nil
		},
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(echoTool())

	if _, ok := reg.Get("echo"); !ok {
		t.Error("expected echo to be registered")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("unexpected tool found")
	}
	if reg.Count() != 1 {
		t.Errorf("expected 1 tool, got %d", reg.Count())
	}

	reg.Unregister("echo")
	if _, ok := reg.Get("echo"); ok {
		t.Error("expected echo to be removed")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry(
		&testTool{name: "zeta"},
		&testTool{name: "alpha"},
		&testTool{name: "mid"},
	)
	want := []string{"alpha", "mid", "zeta"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("names mismatch: %v", got)
	}
}

func TestRegistryParserSpecs(t *testing.T) {
	reg := NewRegistry(
		echoTool(),
		&testTool{name: "think", stream: true, streamParam: "thought"},
	)
	specs := reg.ParserSpecs()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	for _, s := range specs {
		if s.Name == "think" && !s.Stream {
			t.Error("think should be a stream-through spec")
		}
		if s.Name == "echo" && s.Stream {
			t.Error("echo should be buffered")
		}
	}
}

func TestValidateParams(t *testing.T) {
	tool := echoTool()

	if err := ValidateParams(tool, map[string]string{"text": "hi"}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}

	err := ValidateParams(tool, map[string]string{})
	if err == nil {
		t.Fatal("expected missing-parameter error")
	}
	if !strings.Contains(err.Error(), "missing required parameters: text") {
		t.Errorf("unexpected message: %v", err)
	}

	err = ValidateParams(tool, map[string]string{"text": "hi", "bogus": "x"})
	if err == nil || !strings.Contains(err.Error(), `unexpected parameter "bogus"`) {
		t.Errorf("expected unexpected-parameter error, got %v", err)
	}
}

func TestCoerceInt(t *testing.T) {
	n, err := CoerceInt("t", "value", " 42 ")
	if err != nil || n != 42 {
		t.Errorf("expected 42, got %d (%v)", n, err)
	}

	_, err = CoerceInt("t", "value", "4.5")
	if _, ok := err.(*ToolExecutionError); !ok {
		t.Errorf("expected *ToolExecutionError, got %T", err)
	}
}

func TestCoerceBool(t *testing.T) {
	b, err := CoerceBool("t", "flag", "True")
	if err != nil || !b {
		t.Errorf("expected true, got %v (%v)", b, err)
	}
	b, err = CoerceBool("t", "flag", "false")
	if err != nil || b {
		t.Errorf("expected false, got %v (%v)", b, err)
	}
	_, err = CoerceBool("t", "flag", "yes")
	if _, ok := err.(*ToolExecutionError); !ok {
		t.Errorf("expected *ToolExecutionError, got %T", err)
	}
}

func TestCoerceStringList(t *testing.T) {
	got := CoerceStringList(" go.dev , golang.org ,")
	want := []string{"go.dev", "golang.org"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("list mismatch: %v", got)
	}
	if CoerceStringList("  ") != nil {
		t.Error("expected nil for blank input")
	}
}
