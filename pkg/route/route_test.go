package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		input  string
		target Target
		rule   string
	}{
		{"ls -la /tmp", TargetShell, ""},
		{"git status", TargetShell, ""},
		{"docker ps -a", TargetShell, ""},
		{"cat /etc/hosts | grep local", TargetShell, ""},
		{"find . -name '*.go' -mtime -1", TargetShell, ""},
		{"frobnicate --now", TargetShell, ""},

		// An opening instruction verb with shell metacharacters or path
		// arguments still reads as a command.
		{"update ~/notes.txt", TargetShell, ""},
		{"check /var/log/syslog", TargetShell, ""},
		{"list ./build --json", TargetShell, ""},
		{"show $HOME", TargetShell, ""},

		{"do a quick scan of the home directory please", TargetModel, "instruction-verb"},
		{"show me the largest files here", TargetModel, "instruction-verb"},
		{"what is using port 8080", TargetModel, "instruction-verb"},
		{"please clean up old log files", TargetModel, "instruction-verb"},

		{"it's broken", TargetModel, "unbalanced-quoting"},
		{"echo 'unterminated", TargetModel, "unbalanced-quoting"},
		{"why does this fail (sometimes", TargetModel, "unbalanced-quoting"},

		{"покажи файлы в этой папке", TargetModel, "non-latin-script"},
		{"列出这个目录的文件", TargetModel, "non-latin-script"},

		{"summarize the contents of this directory for me.", TargetModel, "sentence-shape"},
		{"the disk seems to be filling up fast?", TargetModel, "sentence-shape"},
	}
	for _, tc := range cases {
		d := Decide(tc.input)
		assert.Equal(t, tc.target, d.Target, "input: %q", tc.input)
		if tc.target == TargetModel {
			assert.Equal(t, tc.rule, d.Rule, "input: %q", tc.input)
		}
	}
}

func TestDecideAccentedLatinStaysShell(t *testing.T) {
	// Accented Latin is still Latin script, not grounds for rerouting.
	d := Decide("cat café.txt")
	assert.Equal(t, TargetShell, d.Target)
}

func TestShouldRetryWithModel(t *testing.T) {
	assert.True(t, ShouldRetryWithModel(127, ""))
	assert.True(t, ShouldRetryWithModel(1, "sh: frobnicate: command not found"))
	assert.True(t, ShouldRetryWithModel(2, "sh: -c: line 1: syntax error near unexpected token"))
	assert.False(t, ShouldRetryWithModel(0, ""))
	assert.False(t, ShouldRetryWithModel(1, "ls: cannot access '/nope': No such file or directory"))
	assert.False(t, ShouldRetryWithModel(2, "grep: invalid option -- 'Z'"))
}

func TestParseBuiltin(t *testing.T) {
	b, arg := ParseBuiltin("cd /tmp")
	assert.Equal(t, BuiltinCd, b)
	assert.Equal(t, "/tmp", arg)

	b, arg = ParseBuiltin("cd")
	assert.Equal(t, BuiltinCd, b)
	assert.Empty(t, arg)

	b, _ = ParseBuiltin("pwd")
	assert.Equal(t, BuiltinPwd, b)

	b, _ = ParseBuiltin("exit")
	assert.Equal(t, BuiltinExit, b)

	b, _ = ParseBuiltin("quit")
	assert.Equal(t, BuiltinExit, b)

	b, _ = ParseBuiltin("logout")
	assert.Equal(t, BuiltinExit, b)

	b, _ = ParseBuiltin("clear")
	assert.Equal(t, BuiltinClear, b)

	b, _ = ParseBuiltin("cdrecord -scanbus")
	assert.Equal(t, BuiltinNone, b)
}
