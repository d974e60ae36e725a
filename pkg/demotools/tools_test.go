package demotools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/conductor/pkg/tool"
)

func TestFSWriteThenFSRead(t *testing.T) {
	dir := t.TempDir()
	write := NewFSWrite(dir)
	read := NewFSRead(dir)

	writeResult := write.Handler(context.Background(), tool.Arguments{"path": "notes/todo.txt", "content": "hello"})
	require.True(t, writeResult.Success)

	readResult := read.Handler(context.Background(), tool.Arguments{"path": "notes/todo.txt"})
	require.True(t, readResult.Success)
	assert.Equal(t, "hello", readResult.Data)
}

func TestFSReadRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	read := NewFSRead(dir)

	result := read.Handler(context.Background(), tool.Arguments{"path": "../../etc/passwd"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestExecShellRejectsDangerousCommand(t *testing.T) {
	dir := t.TempDir()
	exec := NewExecShell(dir)

	result := exec.Handler(context.Background(), tool.Arguments{"command": "sudo rm -rf /"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "denied pattern")
}

func TestExecShellRunsSimpleCommand(t *testing.T) {
	dir := t.TempDir()
	exec := NewExecShell(dir)

	result := exec.Handler(context.Background(), tool.Arguments{"command": "echo hi"})
	assert.True(t, result.Success)
	assert.Contains(t, result.Data, "hi")
}

func TestRegisterAllRegistersFourTools(t *testing.T) {
	dir := t.TempDir()
	reg := tool.NewRegistry()
	RegisterAll(reg, dir)

	for _, name := range []string{"fs_read", "fs_write", "exec_shell", "git_status"} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, "expected %s to be registered", name)
	}
}

func TestNewFSWriteCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	write := NewFSWrite(dir)

	result := write.Handler(context.Background(), tool.Arguments{"path": "a/b/c.txt", "content": "x"})
	require.True(t, result.Success)

	_, err := os.Stat(filepath.Join(dir, "a", "b", "c.txt"))
	require.NoError(t, err)
}
