// Package pattern implements an intent.Provider that matches transcripts
// against per-command regular expressions.
//
// Resolution runs in two passes:
//
//  1. The lower-cased transcript is matched against each command's triggers
//     in registration order; the first hit wins with the transcript's own
//     confidence.
//  2. If nothing matched, words that sound like a command keyword are
//     corrected (Double Metaphone + Jaro-Winkler) and the triggers are tried
//     again. The confidence is scaled by the weakest correction score.
//
// Slot values are extracted from the original transcript text with each
// slot's Extract expression.
package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/stt"
)

var _ intent.Provider = (*Resolver)(nil)

type rule struct {
	command  string
	triggers []*regexp.Regexp
	slots    []slotRule
}

type slotRule struct {
	name    string
	extract *regexp.Regexp
}

// Resolver is a regex-based resolver. It is read-only after construction and
// safe for concurrent use.
type Resolver struct {
	rules   []rule
	vocab   []string
	matcher *matcher
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithoutFuzzy disables the phonetic correction pass.
func WithoutFuzzy() Option {
	return func(r *Resolver) { r.matcher = nil }
}

// WithFuzzyThresholds overrides the phonetic and pure Jaro-Winkler thresholds
// of the correction pass.
func WithFuzzyThresholds(phonetic, fuzzy float64) Option {
	return func(r *Resolver) {
		if r.matcher != nil {
			r.matcher.phoneticThreshold = phonetic
			r.matcher.fuzzyThreshold = fuzzy
		}
	}
}

// New compiles the triggers and slot extractors of cmds. Commands without
// triggers are kept out of the resolver.
func New(cmds []intent.Command, opts ...Option) (*Resolver, error) {
	r := &Resolver{matcher: newMatcher()}
	seen := make(map[string]struct{})

	for _, c := range cmds {
		if len(c.Triggers) == 0 {
			continue
		}
		ru := rule{command: c.Name}
		for _, expr := range c.Triggers {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("pattern: command %q: trigger %q: %w", c.Name, expr, err)
			}
			ru.triggers = append(ru.triggers, re)
		}
		for _, s := range c.Slots {
			if s.Extract == "" {
				continue
			}
			re, err := regexp.Compile(s.Extract)
			if err != nil {
				return nil, fmt.Errorf("pattern: command %q: slot %q: %w", c.Name, s.Name, err)
			}
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("pattern: command %q: slot %q: extract needs a capture group", c.Name, s.Name)
			}
			ru.slots = append(ru.slots, slotRule{name: s.Name, extract: re})
		}
		r.rules = append(r.rules, ru)

		for _, kw := range c.Keywords {
			kw = strings.ToLower(kw)
			if _, dup := seen[kw]; !dup {
				seen[kw] = struct{}{}
				r.vocab = append(r.vocab, kw)
			}
		}
	}

	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Resolve maps t to an intent or returns intent.ErrNoMatch.
func (r *Resolver) Resolve(ctx context.Context, t stt.Transcript) (intent.Intent, error) {
	if err := ctx.Err(); err != nil {
		return intent.Intent{}, err
	}
	text := strings.ToLower(strings.TrimSpace(t.Text))
	if text == "" {
		return intent.Intent{}, intent.ErrNoMatch
	}

	if ru, ok := r.match(text); ok {
		return r.build(ru, t, 1), nil
	}

	if r.matcher == nil || len(r.vocab) == 0 {
		return intent.Intent{}, intent.ErrNoMatch
	}
	corrected, score, changed := r.correct(text)
	if !changed {
		return intent.Intent{}, intent.ErrNoMatch
	}
	ru, ok := r.match(corrected)
	if !ok {
		return intent.Intent{}, intent.ErrNoMatch
	}
	slog.Debug("pattern: matched after phonetic correction", "command", ru.command, "score", score)
	return r.build(ru, t, score), nil
}

func (r *Resolver) match(text string) (*rule, bool) {
	for i := range r.rules {
		for _, re := range r.rules[i].triggers {
			if re.MatchString(text) {
				return &r.rules[i], true
			}
		}
	}
	return nil, false
}

func (r *Resolver) build(ru *rule, t stt.Transcript, scale float64) intent.Intent {
	in := intent.Intent{
		Command:     ru.command,
		Confidence:  stt.ClampConfidence(t.Confidence * scale),
		UtteranceID: t.UtteranceID,
	}
	for _, s := range ru.slots {
		m := s.extract.FindStringSubmatch(t.Text)
		if len(m) < 2 {
			continue
		}
		v := strings.TrimRight(strings.TrimSpace(m[1]), ".,!?;:")
		if v == "" {
			continue
		}
		if in.Slots == nil {
			in.Slots = make(map[string]string, len(ru.slots))
		}
		in.Slots[s.name] = v
	}
	return in
}

// correct replaces words that sound like vocabulary keywords. It returns the
// corrected text, the lowest correction score, and whether anything changed.
func (r *Resolver) correct(text string) (string, float64, bool) {
	words := strings.Fields(text)
	minScore := 1.0
	changed := false
	for i, w := range words {
		bare := strings.Trim(w, ".,!?;:'\"")
		if len(bare) < minWordLen || r.inVocab(bare) {
			continue
		}
		fixed, score, ok := r.matcher.match(bare, r.vocab)
		if !ok {
			continue
		}
		words[i] = fixed
		changed = true
		if score < minScore {
			minScore = score
		}
	}
	return strings.Join(words, " "), minScore, changed
}

func (r *Resolver) inVocab(w string) bool {
	for _, v := range r.vocab {
		if v == w {
			return true
		}
	}
	return false
}
