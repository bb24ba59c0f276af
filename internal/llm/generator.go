package llm

import (
	"context"
	"strings"
)

// sqlQueryMarker is the label the schema prompt's examples put before SQL.
const sqlQueryMarker = "SQL Query:"

// GenerationError reports a failed or empty model call.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string {
	return e.Message
}

// noCandidatesMessage is reported when the model answered with nothing usable.
const noCandidatesMessage = "Unable to generate SQL query."

// Generator turns prompt parts into the raw reply text.
type Generator struct {
	Provider Provider
}

// Generate calls the provider once. The first candidate's text is trimmed and,
// if it carries the "SQL Query:" label, cut down to what follows the last one.
// Every failure is a *GenerationError.
func (g *Generator) Generate(ctx context.Context, parts []string) (string, error) {
	if g.Provider == nil {
		return "", &GenerationError{Message: "LLM provider is not configured"}
	}

	reply, err := g.Provider.GenerateContent(ctx, parts)
	if err != nil {
		return "", &GenerationError{Message: err.Error()}
	}

	text, ok := reply.Text()
	text = strings.TrimSpace(text)
	if !ok || text == "" {
		return "", &GenerationError{Message: noCandidatesMessage}
	}

	if i := strings.LastIndex(text, sqlQueryMarker); i >= 0 {
		text = strings.TrimSpace(text[i+len(sqlQueryMarker):])
	}
	return text, nil
}

// ProviderName returns the configured provider's name, or "none".
func (g *Generator) ProviderName() string {
	if g.Provider == nil {
		return "none"
	}
	return g.Provider.Name()
}
