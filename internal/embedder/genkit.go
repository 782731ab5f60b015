package embedder

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// NewGoogleAI initializes Genkit with the Google AI plugin and resolves the
// named embedder model. Requires GEMINI_API_KEY in the environment.
func NewGoogleAI(ctx context.Context, model string) (ai.Embedder, error) {
	g := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
	)
	if g == nil {
		return nil, fmt.Errorf("genkit init returned nil")
	}

	e := googlegenai.GoogleAIEmbedder(g, model)
	if e == nil {
		return nil, fmt.Errorf("embedder model %q not found", model)
	}
	return e, nil
}
