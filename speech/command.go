package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// ErrNoEngine is returned when no text-to-speech command is installed.
var ErrNoEngine = errors.New("speech: no text-to-speech command found")

// sapiScript reads the utterance from stdin so the text never touches the
// command line.
const sapiScript = `Add-Type -AssemblyName System.Speech; ` +
	`$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; ` +
	`$s.Rate = %d; $s.Volume = %d; ` +
	`$s.Speak([Console]::In.ReadToEnd())`

// Command speaks through an external text-to-speech program.
type Command struct {
	path   string
	args   []string
	stdin  bool // pass text on stdin instead of as the last argument
	rate   int  // -10 (slow) to 10 (fast)
	volume int  // 0 to 100
}

// NewCommand returns an engine for the named program. An empty name picks
// the platform default: SAPI through PowerShell on Windows, say on macOS,
// and espeak-ng, espeak or spd-say elsewhere. Unknown names receive the text
// as their last argument.
func NewCommand(name string, rate, volume int) (*Command, error) {
	rate = max(-10, min(10, rate))
	volume = max(0, min(100, volume))

	candidates := []string{name}
	if name == "" {
		switch runtime.GOOS {
		case "windows":
			candidates = []string{"powershell"}
		case "darwin":
			candidates = []string{"say"}
		default:
			candidates = []string{"espeak-ng", "espeak", "spd-say"}
		}
	}

	for _, c := range candidates {
		path, err := exec.LookPath(c)
		if err != nil {
			continue
		}
		cmd := &Command{path: path, rate: rate, volume: volume}
		cmd.args, cmd.stdin = commandArgs(c, rate, volume)
		return cmd, nil
	}
	if name != "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEngine, name)
	}
	return nil, ErrNoEngine
}

func commandArgs(name string, rate, volume int) ([]string, bool) {
	base := strings.TrimSuffix(strings.ToLower(name), ".exe")
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}

	switch base {
	case "powershell", "pwsh":
		return []string{"-NoProfile", "-NonInteractive", "-Command", fmt.Sprintf(sapiScript, rate, volume)}, true
	case "say":
		return []string{"-r", strconv.Itoa(175 + rate*20), "-f", "-"}, true
	case "espeak", "espeak-ng":
		return []string{"-s", strconv.Itoa(175 + rate*20), "-a", strconv.Itoa(volume * 2), "--stdin"}, true
	case "spd-say":
		// "--" keeps bullet text such as "- Key point" from parsing as flags.
		return []string{"-w", "-r", strconv.Itoa(rate * 10), "-i", strconv.Itoa(volume*2 - 100), "--"}, false
	default:
		return nil, false
	}
}

// Say runs the program to completion. Cancelling ctx kills it.
func (c *Command) Say(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.path, c.argv(text)...)
	if c.stdin {
		cmd.Stdin = strings.NewReader(text)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w, stderr: %s", c.path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// argv returns the program arguments for one utterance.
func (c *Command) argv(text string) []string {
	if c.stdin {
		return c.args
	}
	return append(append([]string{}, c.args...), text)
}
