package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/MrWong99/voxprivate/pkg/provider/intent"
)

// ErrDuplicateCommand is returned by [Registry.Register] when a command name
// is registered twice.
var ErrDuplicateCommand = errors.New("dispatch: command already registered")

// Args holds the validated slot values passed to a [Handler]. Every declared
// slot is present: missing optional slots carry their default.
type Args map[string]string

// Reply is what a handler reports back on success.
type Reply struct {
	// Message is the human-readable outcome, suitable for speech.
	Message string

	// ExitCode is set when the handler waited for an external process.
	ExitCode *int

	// Stop asks the coordinator to shut the assistant down after this
	// command.
	Stop bool
}

// Handler executes a command. Implementations must honour ctx and must pass
// process arguments as separate argv entries, never through a shell.
type Handler func(ctx context.Context, args Args) (Reply, error)

// SlotSpec declares one parameter of a [Command].
type SlotSpec struct {
	Name        string
	Description string
	Required    bool

	// Default is used when an optional slot is absent or empty.
	Default string

	// Pattern, if set, must match the whole value.
	Pattern string

	// MaxLen bounds the value length in bytes. Zero means unbounded.
	MaxLen int

	// Extract is handed to resolvers that pull the value out of speech.
	Extract string
}

// Command is one entry of the allow-list.
type Command struct {
	Name        string
	Description string

	// Triggers and Keywords are forwarded to resolvers via [Registry.Catalog].
	Triggers []string
	Keywords []string

	Slots   []SlotSpec
	Handler Handler

	// Timeout overrides the dispatcher's default handler timeout.
	Timeout time.Duration
}

type entry struct {
	cmd      Command
	patterns map[string]*regexp.Regexp
}

// Registry is the closed set of executable commands. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds cmd to the allow-list after validating its declaration.
func (r *Registry) Register(cmd Command) error {
	var errs []error
	if cmd.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if cmd.Handler == nil {
		errs = append(errs, errors.New("handler must not be nil"))
	}

	e := &entry{cmd: cmd, patterns: make(map[string]*regexp.Regexp)}
	seen := make(map[string]struct{}, len(cmd.Slots))
	for i, s := range cmd.Slots {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("slots[%d]: name must not be empty", i))
			continue
		}
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("slots[%d]: duplicate slot %q", i, s.Name))
		}
		seen[s.Name] = struct{}{}
		if s.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(`^(?:` + s.Pattern + `)$`)
		if err != nil {
			errs = append(errs, fmt.Errorf("slots[%d] %q: %w", i, s.Name, err))
			continue
		}
		if s.Default != "" && !re.MatchString(s.Default) {
			errs = append(errs, fmt.Errorf("slots[%d] %q: default %q does not match pattern", i, s.Name, s.Default))
		}
		e.patterns[s.Name] = re
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("dispatch: register %q: %w", cmd.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[cmd.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateCommand, cmd.Name)
	}
	r.entries[cmd.Name] = e
	r.order = append(r.order, cmd.Name)
	return nil
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Command{}, false
	}
	return e.cmd, true
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Commands returns every registered command in registration order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].cmd)
	}
	return out
}

// Catalog describes the registry to intent resolvers. Registration order is
// preserved because pattern resolution is first-match.
func (r *Registry) Catalog() []intent.Command {
	cmds := r.Commands()
	out := make([]intent.Command, 0, len(cmds))
	for _, c := range cmds {
		ic := intent.Command{
			Name:        c.Name,
			Description: c.Description,
			Triggers:    c.Triggers,
			Keywords:    c.Keywords,
		}
		for _, s := range c.Slots {
			ic.Slots = append(ic.Slots, intent.Slot{
				Name:        s.Name,
				Description: s.Description,
				Required:    s.Required,
				Extract:     s.Extract,
			})
		}
		out = append(out, ic)
	}
	return out
}

// validate checks slots against the command's schema and returns the
// complete argument set.
func (e *entry) validate(slots map[string]string) (Args, error) {
	declared := make(map[string]struct{}, len(e.cmd.Slots))
	args := make(Args, len(e.cmd.Slots))
	for _, s := range e.cmd.Slots {
		declared[s.Name] = struct{}{}
		v := slots[s.Name]
		if v == "" {
			if s.Required {
				return nil, fmt.Errorf("%w: %q is required", ErrInvalidSlot, s.Name)
			}
			args[s.Name] = s.Default
			continue
		}
		if s.MaxLen > 0 && len(v) > s.MaxLen {
			return nil, fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidSlot, s.Name, s.MaxLen)
		}
		if re, ok := e.patterns[s.Name]; ok && !re.MatchString(v) {
			return nil, fmt.Errorf("%w: %q is malformed", ErrInvalidSlot, s.Name)
		}
		args[s.Name] = v
	}
	for name := range slots {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("%w: %q is not declared", ErrInvalidSlot, name)
		}
	}
	return args, nil
}
