// Package llm implements an intent.Provider that asks a local language model
// to classify a transcript into one of the registered commands.
//
// The model is instructed to answer with a single JSON object. Any command
// outside the registered set, including the explicit "none", resolves to
// intent.ErrNoMatch; slots not declared by the chosen command are dropped.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	llmprov "github.com/MrWong99/voxprivate/pkg/provider/llm"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

// ErrMalformedReply is returned when the model answer is not the expected
// JSON object.
var ErrMalformedReply = errors.New("intent/llm: malformed model reply")

var _ intent.Provider = (*Resolver)(nil)

// Resolver classifies transcripts with an llm.Provider.
type Resolver struct {
	llm      llmprov.Provider
	commands map[string]intent.Command
	prompt   string
}

// New returns a Resolver restricted to cmds.
func New(p llmprov.Provider, cmds []intent.Command) (*Resolver, error) {
	if p == nil {
		return nil, errors.New("intent/llm: provider must not be nil")
	}
	if len(cmds) == 0 {
		return nil, errors.New("intent/llm: no commands registered")
	}
	r := &Resolver{
		llm:      p,
		commands: make(map[string]intent.Command, len(cmds)),
		prompt:   systemPrompt(cmds),
	}
	for _, c := range cmds {
		r.commands[c.Name] = c
	}
	return r, nil
}

type reply struct {
	Command    string            `json:"command"`
	Slots      map[string]string `json:"slots"`
	Confidence *float64          `json:"confidence"`
}

// Resolve asks the model to classify t.
func (r *Resolver) Resolve(ctx context.Context, t stt.Transcript) (intent.Intent, error) {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return intent.Intent{}, intent.ErrNoMatch
	}

	resp, err := r.llm.Complete(ctx, llmprov.CompletionRequest{
		SystemPrompt: r.prompt,
		Messages:     []llmprov.Message{{Role: "user", Content: text}},
		Temperature:  0.0,
		MaxTokens:    128,
	})
	if err != nil {
		return intent.Intent{}, fmt.Errorf("intent/llm: complete: %w", err)
	}

	rep, err := parseReply(resp.Content)
	if err != nil {
		return intent.Intent{}, err
	}

	cmd, ok := r.commands[rep.Command]
	if !ok {
		if rep.Command != "" && rep.Command != "none" {
			slog.Debug("intent/llm: model proposed unregistered command", "command", rep.Command)
		}
		return intent.Intent{}, intent.ErrNoMatch
	}

	conf := 1.0
	if rep.Confidence != nil {
		conf = stt.ClampConfidence(*rep.Confidence)
	}
	in := intent.Intent{
		Command:     cmd.Name,
		Confidence:  stt.ClampConfidence(t.Confidence * conf),
		UtteranceID: t.UtteranceID,
	}
	for _, s := range cmd.Slots {
		v, ok := rep.Slots[s.Name]
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if in.Slots == nil {
			in.Slots = make(map[string]string, len(cmd.Slots))
		}
		in.Slots[s.Name] = strings.TrimSpace(v)
	}
	return in, nil
}

// parseReply extracts the outermost JSON object from content; local models
// often wrap it in prose or code fences.
func parseReply(content string) (reply, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return reply{}, fmt.Errorf("%w: no JSON object", ErrMalformedReply)
	}
	var rep reply
	if err := json.Unmarshal([]byte(content[start:end+1]), &rep); err != nil {
		return reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	rep.Command = strings.ToLower(strings.TrimSpace(rep.Command))
	return rep, nil
}

func systemPrompt(cmds []intent.Command) string {
	var b strings.Builder
	b.WriteString("You map a spoken request to exactly one command of a desktop voice assistant.\n")
	b.WriteString("Answer with a single JSON object and nothing else:\n")
	b.WriteString(`{"command": "<name or none>", "slots": {"<slot>": "<value>"}, "confidence": <0..1>}`)
	b.WriteString("\nUse \"none\" when the request matches no command. Never invent commands or slots.\n\nCommands:\n")
	for _, c := range cmds {
		fmt.Fprintf(&b, "- %s: %s", c.Name, c.Description)
		if len(c.Slots) > 0 {
			names := make([]string, len(c.Slots))
			for i, s := range c.Slots {
				names[i] = s.Name
			}
			fmt.Fprintf(&b, " (slots: %s)", strings.Join(names, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
