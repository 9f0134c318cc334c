// Package whisper provides an stt.Provider backed by the whisper.cpp CGO
// bindings. Models are loaded from local disk only.
//
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrModelNotFound is returned when a model identifier does not resolve to an
// existing file.
var ErrModelNotFound = errors.New("whisper: model not found")

const (
	defaultLanguage = "en"

	// modelSampleRate is the only input rate whisper models accept.
	modelSampleRate = 16000
)

// modelID matches the ggml model names published by whisper.cpp.
var modelID = regexp.MustCompile(`^(tiny|base|small|medium|large(-v[123])?)(\.en)?$`)

// ResolveModel maps a model identifier such as "base.en" to the file
// ggml-base.en.bin inside dir. Any other value is treated as a file path.
// The returned path is guaranteed to exist.
func ResolveModel(id, dir string) (string, error) {
	if id == "" {
		return "", errors.New("whisper: model identifier must not be empty")
	}
	path := id
	if modelID.MatchString(id) {
		path = filepath.Join(dir, "ggml-"+id+".bin")
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrModelNotFound, path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", ErrModelNotFound, path)
	}
	return path, nil
}
