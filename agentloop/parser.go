package agentloop

import (
	"strings"
)

// FragmentKind classifies the output of the StreamParser.
type FragmentKind int

const (
	// FragmentText is plain assistant text outside any tool block.
	FragmentText FragmentKind = iota
	// FragmentToolDelta is an increment of a stream-through tool's block
	// content, surfaced while the block is still open.
	FragmentToolDelta
	// FragmentToolComplete marks a closed tool block and carries the
	// parsed call.
	FragmentToolComplete
)

// Fragment is one classified increment of model output.
type Fragment struct {
	Kind     FragmentKind
	Text     string
	ToolName string
	Call     *ParsedToolCall
}

// ParsedToolCall is a completed tool block. Parameter values are raw
// strings; the executing tool is responsible for coercion and validation.
type ParsedToolCall struct {
	Name   string
	Params map[string]string
	Raw    string
}

// ToolSpec is the parser's view of a registered tool: its tag name and
// whether its block content streams through to the caller before the block
// closes.
type ToolSpec struct {
	Name   string
	Stream bool
}

type parseMode int

const (
	modeText parseMode = iota
	modeMatching
	modeInTool
)

// A candidate tag longer than this cannot be a tool tag; flush it as text
// rather than buffering indefinitely.
const maxTagLen = 256

// StreamParser is a single-pass incremental classifier for model output.
// It consumes text increments at arbitrary granularity (a tag may be split
// across chunk boundaries) and emits an ordered sequence of Fragments.
// A parser serves exactly one model stream; construct a fresh instance per
// call.
type StreamParser struct {
	names  map[string]bool
	stream map[string]bool

	mode parseMode

	// MATCHING state: buffered candidate tag text (starting at '<'),
	// candidate tool name, and whether whitespace ended the name.
	tagBuf   strings.Builder
	tagName  strings.Builder
	nameDone bool

	// IN_TOOL_CALL state: the open tool, its block content so far, the
	// open-tag nesting count, and how much content has streamed through.
	tool    string
	body    strings.Builder
	depth   int
	emitted int
}

// NewStreamParser creates a parser for the given tool set.
func NewStreamParser(specs []ToolSpec) *StreamParser {
	p := &StreamParser{
		names:  make(map[string]bool, len(specs)),
		stream: make(map[string]bool, len(specs)),
	}
	for _, s := range specs {
		p.names[s.Name] = true
		if s.Stream {
			p.stream[s.Name] = true
		}
	}
	return p
}

// Feed consumes one increment of model output and returns the fragments it
// completes. Text and stream-through content are flushed per call; a
// partially matched tag is held across calls.
func (p *StreamParser) Feed(chunk string) []Fragment {
	var frags []Fragment
	var text strings.Builder

	flushText := func() {
		if text.Len() > 0 {
			frags = append(frags, Fragment{Kind: FragmentText, Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]
		switch p.mode {
		case modeText:
			if c == '<' {
				p.startMatching()
			} else {
				text.WriteByte(c)
			}

		case modeMatching:
			switch {
			case c == '<':
				// New candidate; everything buffered so far is literal.
				text.WriteString(p.tagBuf.String())
				p.startMatching()
			case c == '>':
				p.tagBuf.WriteByte(c)
				name := p.tagName.String()
				if p.names[name] && p.tagTrailerBlank() {
					flushText()
					p.openBlock(name)
				} else {
					text.WriteString(p.tagBuf.String())
					p.mode = modeText
				}
			case c == ' ' || c == '\t' || c == '\n' || c == '\r':
				p.tagBuf.WriteByte(c)
				p.nameDone = true
			default:
				p.tagBuf.WriteByte(c)
				if !p.nameDone {
					p.tagName.WriteByte(c)
				}
				if p.tagBuf.Len() > maxTagLen {
					text.WriteString(p.tagBuf.String())
					p.mode = modeText
				}
			}

		case modeInTool:
			p.body.WriteByte(c)
			if c != '>' {
				continue
			}
			b := p.body.String()
			if strings.HasSuffix(b, "</"+p.tool+">") {
				p.depth--
				if p.depth == 0 {
					flushText()
					frags = append(frags, p.closeBlock()...)
				}
			} else if strings.HasSuffix(b, "<"+p.tool+">") {
				// The block's own open tag is not part of the body, so
				// this is a nested occurrence.
				p.depth++
			}
		}
	}

	flushText()
	if p.mode == modeInTool {
		if d, ok := p.streamDelta(); ok {
			frags = append(frags, d)
		}
	}
	return frags
}

// Finish signals end of stream. A partially matched tag is flushed as
// literal text; end of stream inside an open tool block is a ParseError.
func (p *StreamParser) Finish() ([]Fragment, error) {
	switch p.mode {
	case modeMatching:
		p.mode = modeText
		return []Fragment{{Kind: FragmentText, Text: p.tagBuf.String()}}, nil
	case modeInTool:
		partial := "<" + p.tool + ">" + p.body.String()
		return nil, &ParseError{
			Message: "stream ended inside <" + p.tool + "> block",
			Partial: partial,
		}
	default:
		return nil, nil
	}
}

// tagTrailerBlank reports whether everything between the candidate name
// and the closing '>' is whitespace. The name is considered complete once
// it is terminated by '>' or whitespace; anything else after it makes the
// tag literal text.
func (p *StreamParser) tagTrailerBlank() bool {
	buf := p.tagBuf.String()
	trailer := buf[1+p.tagName.Len() : len(buf)-1]
	return strings.TrimSpace(trailer) == ""
}

func (p *StreamParser) startMatching() {
	p.mode = modeMatching
	p.tagBuf.Reset()
	p.tagBuf.WriteByte('<')
	p.tagName.Reset()
	p.nameDone = false
}

func (p *StreamParser) openBlock(name string) {
	p.mode = modeInTool
	p.tool = name
	p.body.Reset()
	p.depth = 1
	p.emitted = 0
}

// streamDelta returns the content that can be safely surfaced for a
// stream-through tool. The last len(closeTag)-1 bytes are held back in
// case they are a prefix of the closing tag; closeBlock releases them.
func (p *StreamParser) streamDelta() (Fragment, bool) {
	if !p.stream[p.tool] {
		return Fragment{}, false
	}
	holdback := len(p.tool) + 2 // "</" + name + ">" minus the final '>'
	safe := p.body.Len() - holdback
	if safe <= p.emitted {
		return Fragment{}, false
	}
	delta := p.body.String()[p.emitted:safe]
	p.emitted = safe
	return Fragment{Kind: FragmentToolDelta, Text: delta, ToolName: p.tool}, true
}

func (p *StreamParser) closeBlock() []Fragment {
	var frags []Fragment
	b := p.body.String()
	inner := b[:len(b)-len(p.tool)-3] // strip the closing tag

	if p.stream[p.tool] && len(inner) > p.emitted {
		frags = append(frags, Fragment{
			Kind:     FragmentToolDelta,
			Text:     inner[p.emitted:],
			ToolName: p.tool,
		})
	}

	raw := "<" + p.tool + ">" + b
	frags = append(frags, Fragment{
		Kind:     FragmentToolComplete,
		ToolName: p.tool,
		Call: &ParsedToolCall{
			Name:   p.tool,
			Params: parseParams(inner),
			Raw:    raw,
		},
	})

	p.mode = modeText
	p.tool = ""
	p.body.Reset()
	p.emitted = 0
	return frags
}

// parseParams extracts a flat parameter-tag → trimmed-value mapping from a
// block's inner content. Only a single level of nesting is interpreted;
// structure inside a parameter value is opaque. Unpaired or malformed tags
// are skipped rather than failing the whole block.
func parseParams(inner string) map[string]string {
	params := make(map[string]string)
	i := 0
	for i < len(inner) {
		lt := strings.IndexByte(inner[i:], '<')
		if lt < 0 {
			break
		}
		lt += i
		gt := strings.IndexByte(inner[lt:], '>')
		if gt < 0 {
			break
		}
		gt += lt
		key := inner[lt+1 : gt]
		if key == "" || !validParamName(key) {
			i = lt + 1
			continue
		}
		closing := "</" + key + ">"
		end := strings.Index(inner[gt+1:], closing)
		if end < 0 {
			i = gt + 1
			continue
		}
		end += gt + 1
		params[key] = strings.TrimSpace(inner[gt+1 : end])
		i = end + len(closing)
	}
	return params
}

func validParamName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}
