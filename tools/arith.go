package tools

import (
	"context"
	"strconv"

	"github.com/tandem-agent/tandem/agentloop"
)

// Adder sums two integer parameters. It exists to exercise parameter
// coercion end to end and as a deterministic tool for demos and tests.
type Adder struct{}

// NewAdder creates the add tool.
func NewAdder() *Adder { return &Adder{} }

func (a *Adder) Name() string        { return "add" }
func (a *Adder) Description() string { return "Add two integers and return their sum." }

func (a *Adder) Parameters() map[string]agentloop.ParamSpec {
	return map[string]agentloop.ParamSpec{
		"a": {Description: "First addend", Type: "int", Required: true},
		"b": {Description: "Second addend", Type: "int", Required: true},
	}
}

func (a *Adder) Streaming() bool     { return false }
func (a *Adder) StreamParam() string { return "" }

func (a *Adder) Execute(_ context.Context, params map[string]string) (string, error) {
	x, err := agentloop.CoerceInt(a.Name(), "a", params["a"])
	if err != nil {
		return "", err
	}
	y, err := agentloop.CoerceInt(a.Name(), "b", params["b"])
	if err != nil {
		return "", err
	}
	return strconv.Itoa(x + y), nil
}

// EchoInt validates and echoes an integer parameter.
type EchoInt struct{}

// NewEchoInt creates the echo_int tool.
func NewEchoInt() *EchoInt { return &EchoInt{} }

func (e *EchoInt) Name() string        { return "echo_int" }
func (e *EchoInt) Description() string { return "Echo an integer value back after validation." }

func (e *EchoInt) Parameters() map[string]agentloop.ParamSpec {
	return map[string]agentloop.ParamSpec{
		"value": {Description: "An integer value.", Type: "int", Required: true},
	}
}

func (e *EchoInt) Streaming() bool     { return false }
func (e *EchoInt) StreamParam() string { return "" }

func (e *EchoInt) Execute(_ context.Context, params map[string]string) (string, error) {
	v, err := agentloop.CoerceInt(e.Name(), "value", params["value"])
	if err != nil {
		return "", err
	}
	return "echo_int executed successfully with value: " + strconv.Itoa(v), nil
}
