package agentloop

import (
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var testSpecs = []ToolSpec{
	{Name: "search"},
	{Name: "search_deep"},
	{Name: "think", Stream: true},
	{Name: "final_output", Stream: true},
}

// collect feeds the input in the given chunk sizes and returns all
// fragments including Finish output.
func collect(t *testing.T, input string, chunkSize int) ([]Fragment, error) {
	t.Helper()
	p := NewStreamParser(testSpecs)
	var frags []Fragment
	for i := 0; i < len(input); i += chunkSize {
		end := i + chunkSize
		if end > len(input) {
			end = len(input)
		}
		frags = append(frags, p.Feed(input[i:end])...)
	}
	tail, err := p.Finish()
	frags = append(frags, tail...)
	return frags, err
}

// joined flattens fragments per kind for comparisons that ignore chunk
// granularity.
func joined(frags []Fragment) (text string, deltas map[string]string, completes []*ParsedToolCall) {
	deltas = make(map[string]string)
	for _, f := range frags {
		switch f.Kind {
		case FragmentText:
			text += f.Text
		case FragmentToolDelta:
			deltas[f.ToolName] += f.Text
		case FragmentToolComplete:
			completes = append(completes, f.Call)
		}
	}
	return text, deltas, completes
}

func TestParserPlainText(t *testing.T) {
	frags, err := collect(t, "hello world, no tools here", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, _, completes := joined(frags)
	if text != "hello world, no tools here" {
		t.Errorf("text mismatch: %q", text)
	}
	if len(completes) != 0 {
		t.Errorf("expected no tool calls, got %d", len(completes))
	}
}

func TestParserBufferedToolCall(t *testing.T) {
	input := "<search><query>Paris</query></search>"
	frags, err := collect(t, input, len(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, deltas, completes := joined(frags)
	if text != "" {
		t.Errorf("buffered tool leaked text: %q", text)
	}
	if len(deltas) != 0 {
		t.Errorf("buffered tool produced deltas: %v", deltas)
	}
	if len(completes) != 1 {
		t.Fatalf("expected 1 complete, got %d", len(completes))
	}
	call := completes[0]
	if call.Name != "search" {
		t.Errorf("expected tool search, got %q", call.Name)
	}
	if !reflect.DeepEqual(call.Params, map[string]string{"query": "Paris"}) {
		t.Errorf("unexpected params: %v", call.Params)
	}
	if call.Raw != input {
		t.Errorf("raw block mismatch: %q", call.Raw)
	}
}

func TestParserUnregisteredTagIsLiteralText(t *testing.T) {
	input := "some text <foo>bar</foo> more text"
	frags, err := collect(t, input, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, _, completes := joined(frags)
	if text != input {
		t.Errorf("expected verbatim text, got %q", text)
	}
	if len(completes) != 0 {
		t.Errorf("unregistered tag produced a tool call")
	}
}

func TestParserPrefixDisambiguation(t *testing.T) {
	input := "<search_deep><query>go</query></search_deep>"
	frags, err := collect(t, input, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, completes := joined(frags)
	if len(completes) != 1 || completes[0].Name != "search_deep" {
		t.Fatalf("expected search_deep call, got %+v", completes)
	}
}

func TestParserStreamThroughDeltas(t *testing.T) {
	input := "<think><thought>step one, step two</thought></think>"
	p := NewStreamParser(testSpecs)

	var deltas []string
	var complete *ParsedToolCall
	for i := 0; i < len(input); i++ {
		for _, f := range p.Feed(input[i : i+1]) {
			switch f.Kind {
			case FragmentToolDelta:
				if f.ToolName != "think" {
					t.Fatalf("delta from wrong tool: %q", f.ToolName)
				}
				deltas = append(deltas, f.Text)
			case FragmentToolComplete:
				complete = f.Call
			case FragmentText:
				t.Fatalf("unexpected text fragment: %q", f.Text)
			}
		}
	}
	if _, err := p.Finish(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if complete == nil {
		t.Fatal("no complete emitted")
	}
	if len(deltas) < 2 {
		t.Errorf("expected incremental deltas, got %d", len(deltas))
	}
	inner := "<thought>step one, step two</thought>"
	if got := strings.Join(deltas, ""); got != inner {
		t.Errorf("delta concatenation mismatch:\n got %q\nwant %q", got, inner)
	}
	if complete.Params["thought"] != "step one, step two" {
		t.Errorf("unexpected thought param: %q", complete.Params["thought"])
	}
}

func TestParserNestedSameNameTags(t *testing.T) {
	input := "<search><query>uses of <search>tags</search> in text</query></search>"
	frags, err := collect(t, input, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, completes := joined(frags)
	if len(completes) != 1 {
		t.Fatalf("expected 1 complete, got %d", len(completes))
	}
	want := "uses of <search>tags</search> in text"
	if got := completes[0].Params["query"]; got != want {
		t.Errorf("nested content mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestParserMixedTextAndToolCall(t *testing.T) {
	input := "Let me check. <search><query>weather</query></search>"
	frags, err := collect(t, input, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, _, completes := joined(frags)
	if text != "Let me check. " {
		t.Errorf("text mismatch: %q", text)
	}
	if len(completes) != 1 || completes[0].Name != "search" {
		t.Fatalf("expected search call, got %+v", completes)
	}
	// Text precedes the tool call.
	if frags[0].Kind != FragmentText {
		t.Error("expected leading text fragment first")
	}
}

func TestParserLiteralAngleBrackets(t *testing.T) {
	cases := []string{
		"a < b and b > c",
		"tuple<int, string> in prose",
		"trailing open bracket <",
		"<>",
		"< spaced >",
	}
	for _, input := range cases {
		frags, err := collect(t, input, 2)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", input, err)
		}
		text, _, completes := joined(frags)
		if text != input {
			t.Errorf("%q: text mismatch: %q", input, text)
		}
		if len(completes) != 0 {
			t.Errorf("%q: unexpected tool call", input)
		}
	}
}

func TestParserWhitespaceTerminatedTag(t *testing.T) {
	// Name terminated by whitespace, then '>': still the registered tag.
	frags, err := collect(t, "<search ><query>x</query></search>", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, completes := joined(frags)
	if len(completes) != 1 || completes[0].Name != "search" {
		t.Fatalf("expected search call, got %+v", completes)
	}

	// Non-whitespace after the name makes the tag literal.
	frags, err = collect(t, "<search x>text", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, _, completes := joined(frags)
	if text != "<search x>text" || len(completes) != 0 {
		t.Errorf("expected literal text, got %q / %+v", text, completes)
	}
}

func TestParserUnterminatedBlock(t *testing.T) {
	p := NewStreamParser(testSpecs)
	p.Feed("<search><query>never closed")
	_, err := p.Finish()
	perr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if !strings.Contains(perr.Partial, "<search>") {
		t.Errorf("partial block missing from error: %q", perr.Partial)
	}
}

func TestParserPendingTagFlushedAtFinish(t *testing.T) {
	p := NewStreamParser(testSpecs)
	frags := p.Feed("text <sea")
	tail, err := p.Finish()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, _, _ := joined(append(frags, tail...))
	if text != "text <sea" {
		t.Errorf("expected flushed partial tag, got %q", text)
	}
}

func TestParserMultipleParams(t *testing.T) {
	input := "<search><query>go releases</query><include_domains>go.dev, golang.org</include_domains></search>"
	frags, err := collect(t, input, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, completes := joined(frags)
	if len(completes) != 1 {
		t.Fatalf("expected 1 complete, got %d", len(completes))
	}
	want := map[string]string{
		"query":           "go releases",
		"include_domains": "go.dev, golang.org",
	}
	if !reflect.DeepEqual(completes[0].Params, want) {
		t.Errorf("params mismatch: %v", completes[0].Params)
	}
}

func TestParserParamValuesTrimmed(t *testing.T) {
	input := "<search><query>\n  Paris\n</query></search>"
	frags, err := collect(t, input, len(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, completes := joined(frags)
	if got := completes[0].Params["query"]; got != "Paris" {
		t.Errorf("expected trimmed value, got %q", got)
	}
}

// Chunk-boundary invariance: any split of the same input yields the same
// classified output.
func TestParserChunkInvariance(t *testing.T) {
	inputs := []string{
		"plain text only",
		"text <search><query>Paris</query></search> after",
		"<think><thought>a < b, honest</thought></think>",
		"<foo>bar</foo> and <search><query>x</query></search>",
		"边界 unicode ✓ <search><query>北京</query></search>",
	}
	for _, input := range inputs {
		whole, err := collect(t, input, len(input))
		if err != nil {
			t.Fatalf("%q: %v", input, err)
		}
		wText, wDeltas, wCalls := joined(whole)

		for _, size := range []int{1, 2, 3, 7} {
			frags, err := collect(t, input, size)
			if err != nil {
				t.Fatalf("%q size %d: %v", input, size, err)
			}
			text, deltas, calls := joined(frags)
			if text != wText {
				t.Errorf("%q size %d: text %q != %q", input, size, text, wText)
			}
			if !reflect.DeepEqual(deltas, wDeltas) {
				t.Errorf("%q size %d: deltas %v != %v", input, size, deltas, wDeltas)
			}
			if !reflect.DeepEqual(calls, wCalls) {
				t.Errorf("%q size %d: calls %v != %v", input, size, calls, wCalls)
			}
		}
	}
}

func TestParserChunkInvarianceProperty(t *testing.T) {
	pieces := []string{
		"hello ", "<", "search", ">", "<query>", "rapid testing", "</query>",
		"</search>", " tail", "<foo>", "bar", "</foo>", "< loose", "\n",
		"<think><thought>", "plan", "</thought></think>",
	}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(rt, "n")
		var sb strings.Builder
		for i := 0; i < n; i++ {
			sb.WriteString(rapid.SampledFrom(pieces).Draw(rt, "piece"))
		}
		input := sb.String()

		reference := NewStreamParser(testSpecs)
		refFrags := reference.Feed(input)
		refTail, refErr := reference.Finish()
		refText, refDeltas, refCalls := joined(append(refFrags, refTail...))

		chunked := NewStreamParser(testSpecs)
		var frags []Fragment
		i := 0
		for i < len(input) {
			size := rapid.IntRange(1, 5).Draw(rt, "size")
			end := i + size
			if end > len(input) {
				end = len(input)
			}
			frags = append(frags, chunked.Feed(input[i:end])...)
			i = end
		}
		tail, err := chunked.Finish()
		frags = append(frags, tail...)

		if (err == nil) != (refErr == nil) {
			rt.Fatalf("error mismatch: %v vs %v", err, refErr)
		}
		text, deltas, calls := joined(frags)
		if text != refText {
			rt.Fatalf("text mismatch: %q vs %q", text, refText)
		}
		if !reflect.DeepEqual(deltas, refDeltas) {
			rt.Fatalf("delta mismatch: %v vs %v", deltas, refDeltas)
		}
		if !reflect.DeepEqual(calls, refCalls) {
			rt.Fatalf("call mismatch: %v vs %v", calls, refCalls)
		}
	})
}

func TestParseParamsLenient(t *testing.T) {
	params := parseParams("prose before <query>x</query> <unclosed> <n>1</n>")
	want := map[string]string{"query": "x", "n": "1"}
	if !reflect.DeepEqual(params, want) {
		t.Errorf("params mismatch: %v", params)
	}
}
