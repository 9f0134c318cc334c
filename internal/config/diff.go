package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart and is reported through RestartRequired.
type ConfigDiff struct {
	LoggingChanged bool
	NewLogging     LoggingConfig

	ThresholdChanged bool
	NewThreshold     float64

	// RestartRequired lists changed sections that only take effect after a
	// restart (e.g., "audio", "model").
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LoggingChanged || d.ThresholdChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Logging.Enabled != new.Logging.Enabled || old.Logging.Verbose != new.Logging.Verbose {
		d.LoggingChanged = true
		d.NewLogging = new.Logging
	}
	if old.Commands.ConfidenceThreshold != new.Commands.ConfidenceThreshold {
		d.ThresholdChanged = true
		d.NewThreshold = new.Commands.ConfidenceThreshold
	}

	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Model != new.Model {
		d.RestartRequired = append(d.RestartRequired, "model")
	}
	if old.VAD != new.VAD {
		d.RestartRequired = append(d.RestartRequired, "vad")
	}
	if !sameIntent(old.Intent, new.Intent) {
		d.RestartRequired = append(d.RestartRequired, "intent")
	}
	oc, nc := old.Commands, new.Commands
	oc.ConfidenceThreshold, nc.ConfidenceThreshold = 0, 0
	if oc != nc {
		d.RestartRequired = append(d.RestartRequired, "commands")
	}
	if old.Pipeline != new.Pipeline {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	if old.Logging.File != new.Logging.File || old.Logging.Journal != new.Logging.Journal {
		d.RestartRequired = append(d.RestartRequired, "logging")
	}
	if old.Feedback != new.Feedback {
		d.RestartRequired = append(d.RestartRequired, "feedback")
	}
	if old.Server != new.Server {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	return d
}

// sameIntent compares the scalar and list fields of two intent configs.
// Backend options are not compared.
func sameIntent(a, b IntentConfig) bool {
	if a.DisableFuzzy != b.DisableFuzzy || len(a.Resolvers) != len(b.Resolvers) {
		return false
	}
	for i := range a.Resolvers {
		if a.Resolvers[i] != b.Resolvers[i] {
			return false
		}
	}
	return a.LLM.Name == b.LLM.Name &&
		a.LLM.Model == b.LLM.Model &&
		a.LLM.BaseURL == b.LLM.BaseURL &&
		a.LLM.APIKey == b.LLM.APIKey
}
