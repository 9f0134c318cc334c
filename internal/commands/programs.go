package commands

import (
	"context"
	"fmt"
	"os"
)

// Candidate programs per GOOS, tried in order.
var (
	terminals = map[string][][]string{
		"linux":  {{"gnome-terminal"}, {"xterm"}, {"konsole"}, {"xfce4-terminal"}},
		"darwin": {{"open", "-a", "Terminal"}},
	}
	players = map[string][][]string{
		"linux":  {{"rhythmbox"}, {"banshee"}, {"clementine"}, {"vlc"}},
		"darwin": {{"open", "-a", "Music"}},
	}
	calculators = map[string][][]string{
		"linux":  {{"gnome-calculator"}, {"kcalc"}, {"xcalc"}},
		"darwin": {{"open", "-a", "Calculator"}},
	}
	editors = map[string][][]string{
		"linux":  {{"gedit"}, {"kate"}, {"mousepad"}},
		"darwin": {{"open", "-a", "TextEdit"}},
	}
	volumeUp = map[string][][]string{
		"linux": {
			{"pactl", "set-sink-volume", "@DEFAULT_SINK@", "+10%"},
			{"amixer", "-q", "set", "Master", "10%+"},
		},
		"darwin": {{"osascript", "-e", "set volume output volume ((output volume of (get volume settings)) + 10)"}},
	}
	volumeDown = map[string][][]string{
		"linux": {
			{"pactl", "set-sink-volume", "@DEFAULT_SINK@", "-10%"},
			{"amixer", "-q", "set", "Master", "10%-"},
		},
		"darwin": {{"osascript", "-e", "set volume output volume ((output volume of (get volume settings)) - 10)"}},
	}
	mute = map[string][][]string{
		"linux": {
			{"pactl", "set-sink-mute", "@DEFAULT_SINK@", "toggle"},
			{"amixer", "-q", "set", "Master", "toggle"},
		},
		"darwin": {{"osascript", "-e", "set volume with output muted"}},
	}
	shutdown = map[string][][]string{
		"linux":  {{"shutdown", "-h", "+1"}},
		"darwin": {{"osascript", "-e", `tell application "System Events" to shut down`}},
	}
	restart = map[string][][]string{
		"linux":  {{"shutdown", "-r", "+1"}},
		"darwin": {{"osascript", "-e", `tell application "System Events" to restart`}},
	}
	suspend = map[string][][]string{
		"linux":  {{"systemctl", "suspend"}},
		"darwin": {{"pmset", "sleepnow"}},
	}
)

// screenshotTools returns the screenshot candidates writing to path.
func screenshotTools(path string) map[string][][]string {
	return map[string][][]string{
		"linux": {
			{"gnome-screenshot", "-f", path},
			{"grim", path},
			{"scrot", path},
			{"import", "-window", "root", path},
		},
		"darwin": {{"screencapture", "-x", path}},
	}
}

func touchDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("commands: create directory: %w", err)
	}
	return nil
}
