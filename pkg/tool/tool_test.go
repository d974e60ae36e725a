package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Definition{
		Name:      "fs_write",
		Operation: OpWrite,
		Handler: func(ctx context.Context, args Arguments) Result {
			return Result{Success: true}
		},
	})

	def, ok := reg.Lookup("fs_write")
	require.True(t, ok)
	assert.Equal(t, OpWrite, def.Operation)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"fs_write"}, reg.Names())
}

func TestRegistryReRegisterOverwrites(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Definition{Name: "x", Operation: OpRead})
	reg.Register(Definition{Name: "x", Operation: OpDelete})

	def, ok := reg.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, OpDelete, def.Operation)
}

type writeArgs struct {
	Path    string `tool:"path"`
	Content string `tool:"content"`
}

func TestDecodeWeaklyTypedInput(t *testing.T) {
	var out writeArgs
	err := Decode(Arguments{"path": "a.go", "content": "package main"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "a.go", out.Path)
	assert.Equal(t, "package main", out.Content)
}

func TestSchemaForProducesObjectSchema(t *testing.T) {
	schema := SchemaFor(&writeArgs{})
	assert.Equal(t, "object", schema["type"])
	_, hasProps := schema["properties"]
	assert.True(t, hasProps)
}
