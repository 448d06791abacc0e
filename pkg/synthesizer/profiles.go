package synthesizer

import "github.com/code-100-precent/LingReader/pkg/sectioner"

// Section profiles per engine. The streaming engine starts with a short
// section so the first audio arrives quickly.
var (
	ProfileStreaming = sectioner.Profile{
		MaxSize:         4096,
		FirstSize:       500,
		StandardSize:    2000,
		Tolerance:       64,
		SymmetricWindow: 200,
	}
	ProfileOpenAI = sectioner.Profile{
		MaxSize:      4096,
		FirstSize:    1000,
		StandardSize: 4000,
		Tolerance:    96,
	}
	ProfileCompat = sectioner.Profile{
		MaxSize:       6144,
		StandardSize:  6000,
		ForwardWindow: 144,
	}
	ProfileLocal = sectioner.Profile{
		MaxSize:      6144,
		StandardSize: 2000,
		Tolerance:    64,
	}
)
