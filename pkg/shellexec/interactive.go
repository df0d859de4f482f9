package shellexec

import "strings"

// fullscreenPrograms are programs that take over the terminal and cannot run
// with captured output.
var fullscreenPrograms = map[string]bool{
	"vim":     true,
	"vi":      true,
	"nvim":    true,
	"nano":    true,
	"emacs":   true,
	"less":    true,
	"more":    true,
	"most":    true,
	"top":     true,
	"htop":    true,
	"btop":    true,
	"man":     true,
	"ssh":     true,
	"tmux":    true,
	"screen":  true,
	"watch":   true,
	"visudo":  true,
	"fzf":     true,
	"ranger":  true,
	"mc":      true,
	"tig":     true,
	"lazygit": true,
	"gdb":     true,
	"crontab": true,
}

// interactiveRule names one interactivity signal. Rules are evaluated in
// order and the first match wins.
type interactiveRule struct {
	name  string
	match func(command string) bool
}

var interactiveRules = []interactiveRule{
	{
		// Output piped into a pager has to reach the terminal directly.
		name: "pager-pipe",
		match: func(command string) bool {
			for _, pager := range []string{"less", "more", "most"} {
				if strings.HasSuffix(command, "| "+pager) || strings.Contains(command, "| "+pager+" ") {
					return true
				}
			}
			return false
		},
	},
	{
		name: "fullscreen-program",
		match: func(command string) bool {
			return fullscreenPrograms[firstToken(command)]
		},
	},
	{
		// Elevation wrapping a full-screen program; plain elevated commands
		// go through the two-phase captured flow instead.
		name: "elevated-fullscreen",
		match: func(command string) bool {
			rest, ok := strings.CutPrefix(command, "sudo ")
			if !ok {
				return false
			}
			return fullscreenPrograms[firstToken(rest)]
		},
	},
}

// MatchInteractive reports whether the command must run attached to the
// terminal, and which rule decided that.
func MatchInteractive(command string) (rule string, ok bool) {
	command = strings.TrimSpace(command)
	for _, r := range interactiveRules {
		if r.match(command) {
			return r.name, true
		}
	}
	return "", false
}

func firstToken(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
