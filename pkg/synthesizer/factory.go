package synthesizer

import (
	"fmt"
	"strings"

	"github.com/code-100-precent/LingReader/pkg/config"
)

// Engines lists the engines New understands
func Engines() []string {
	return []string{EngineAzure, EngineOpenAI, EngineCompat, EngineLocal}
}

// New builds the backend for engine. The result implements either
// BlobSynthesizer or StreamSynthesizer.
func New(engine string, store config.Store, opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case EngineAzure:
		return NewAzureBackend(store, opts), nil
	case EngineOpenAI, "":
		return NewOpenAIBackend(store, opts), nil
	case EngineCompat:
		return NewCompatBackend(store, opts), nil
	case EngineLocal:
		return NewLocalBackend(store, opts), nil
	default:
		return nil, fmt.Errorf("synthesizer: unknown engine %q (want one of %s)", engine, strings.Join(Engines(), ", "))
	}
}
