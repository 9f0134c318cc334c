package pattern_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/intent/pattern"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

var fixture = []intent.Command{
	{Name: "time", Triggers: []string{`\btime\b`, `\bwhat('s| is) the time\b`}},
	{Name: "date", Triggers: []string{`\bdate\b`, `\btoday\b`}},
	{
		Name:     "open_terminal",
		Triggers: []string{`\bopen (terminal|console|shell)\b`},
		Keywords: []string{"terminal", "console"},
	},
	{
		Name:     "screenshot",
		Triggers: []string{`\b(take|capture|grab) (a )?screenshot\b`, `\bscreenshot\b`},
		Keywords: []string{"screenshot"},
	},
	{
		Name:     "create_file",
		Triggers: []string{`\bcreate (a )?file\b`, `\bnew file\b`},
		Keywords: []string{"create"},
		Slots: []intent.Slot{{
			Name:    "name",
			Extract: `(?i)(?:named?|called?|with name)\s+(\S+)`,
		}},
	},
	{
		Name:     "calculator",
		Triggers: []string{`\bopen (calculator|calc)\b`},
		Keywords: []string{"calculator"},
	},
	{Name: "help", Triggers: []string{`\bhelp\b`, `\bwhat can you do\b`}},
	{Name: "stop", Triggers: []string{`\bstop\b`, `\bexit\b`, `\bgoodbye\b`}},
	{Name: "untriggered"},
}

func newResolver(t *testing.T, opts ...pattern.Option) *pattern.Resolver {
	t.Helper()
	r, err := pattern.New(fixture, opts...)
	if err != nil {
		t.Fatalf("pattern.New: %v", err)
	}
	return r
}

func TestResolve_ExactTriggers(t *testing.T) {
	t.Parallel()
	r := newResolver(t)

	tests := []struct {
		text string
		want string
	}{
		{"What's the time?", "time"},
		{"What's today's date?", "date"},
		{"Take a screenshot", "screenshot"},
		{"Open terminal", "open_terminal"},
		{"What can you do?", "help"},
		{"Goodbye", "stop"},
		{"please OPEN CALCULATOR now", "calculator"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			got, err := r.Resolve(context.Background(), stt.Transcript{Text: tt.text, Confidence: 0.9, UtteranceID: "u1"})
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.text, err)
			}
			if got.Command != tt.want {
				t.Errorf("Command = %q, want %q", got.Command, tt.want)
			}
			if got.Confidence != 0.9 {
				t.Errorf("Confidence = %v, want 0.9", got.Confidence)
			}
			if got.UtteranceID != "u1" {
				t.Errorf("UtteranceID = %q, want u1", got.UtteranceID)
			}
		})
	}
}

func TestResolve_SlotExtraction(t *testing.T) {
	t.Parallel()
	r := newResolver(t)

	tests := []struct {
		text     string
		wantName string
		hasSlot  bool
	}{
		{"Create a file named hello.txt", "hello.txt", true},
		{"create a file called Notes.md.", "Notes.md", true},
		{"new file with name report.txt, please", "report.txt", true},
		{"create a file", "", false},
	}
	for _, tt := range tests {
		got, err := r.Resolve(context.Background(), stt.Transcript{Text: tt.text, Confidence: 1})
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.text, err)
		}
		if got.Command != "create_file" {
			t.Fatalf("Command = %q, want create_file", got.Command)
		}
		v, ok := got.Slots["name"]
		if ok != tt.hasSlot || v != tt.wantName {
			t.Errorf("Resolve(%q) name slot = (%q, %v), want (%q, %v)", tt.text, v, ok, tt.wantName, tt.hasSlot)
		}
	}
}

func TestResolve_NoMatch(t *testing.T) {
	t.Parallel()
	r := newResolver(t)

	for _, text := range []string{"xyzzy blorg fnord", "", "   "} {
		_, err := r.Resolve(context.Background(), stt.Transcript{Text: text, Confidence: 0.9})
		if !errors.Is(err, intent.ErrNoMatch) {
			t.Errorf("Resolve(%q) err = %v, want ErrNoMatch", text, err)
		}
	}
}

func TestResolve_PhoneticCorrection(t *testing.T) {
	t.Parallel()
	r := newResolver(t)

	tests := []struct {
		text string
		want string
	}{
		{"take a screenshoot", "screenshot"},
		{"open calculater", "calculator"},
		{"open termnal", "open_terminal"},
	}
	for _, tt := range tests {
		got, err := r.Resolve(context.Background(), stt.Transcript{Text: tt.text, Confidence: 0.9})
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.text, err)
		}
		if got.Command != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.text, got.Command, tt.want)
		}
		if got.Confidence >= 0.9 || got.Confidence < 0.6 {
			t.Errorf("Resolve(%q) confidence = %v, want scaled into [0.6, 0.9)", tt.text, got.Confidence)
		}
	}
}

func TestResolve_WithoutFuzzy(t *testing.T) {
	t.Parallel()
	r := newResolver(t, pattern.WithoutFuzzy())

	_, err := r.Resolve(context.Background(), stt.Transcript{Text: "open calculater", Confidence: 0.9})
	if !errors.Is(err, intent.ErrNoMatch) {
		t.Errorf("err = %v, want ErrNoMatch", err)
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	t.Parallel()
	r := newResolver(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Resolve(ctx, stt.Transcript{Text: "time"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNew_InvalidExpressions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cmd  intent.Command
	}{
		{"bad trigger", intent.Command{Name: "x", Triggers: []string{"("}}},
		{"bad extract", intent.Command{Name: "x", Triggers: []string{"x"}, Slots: []intent.Slot{{Name: "s", Extract: "("}}}},
		{"no capture group", intent.Command{Name: "x", Triggers: []string{"x"}, Slots: []intent.Slot{{Name: "s", Extract: "named"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := pattern.New([]intent.Command{tt.cmd}); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
