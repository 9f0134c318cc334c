package intent

// Intent is a resolved user request.
type Intent struct {
	// Command is the registered command name (e.g., "create_file").
	Command string

	// Slots maps slot names to raw string values.
	Slots map[string]string

	// Confidence is the resolver's overall score in [0, 1].
	Confidence float64

	// UtteranceID links the intent back to its source utterance. Empty for
	// intents that did not originate from speech.
	UtteranceID string
}

// Command describes a registered command to a resolver. Resolvers may only
// return intents whose Command matches one of these names.
type Command struct {
	Name        string
	Description string

	// Triggers are case-insensitive regular expressions matched against the
	// lower-cased transcript.
	Triggers []string

	// Keywords are the distinctive words of the triggers, used for fuzzy
	// correction of misrecognised speech.
	Keywords []string

	Slots []Slot
}

// Slot describes one parameter of a Command.
type Slot struct {
	Name        string
	Description string
	Required    bool

	// Extract is a regular expression with one capture group that pulls the
	// slot value out of the transcript. Empty means the slot is never filled
	// from speech.
	Extract string
}

// Names returns the command names of cmds in order.
func Names(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Name
	}
	return out
}
