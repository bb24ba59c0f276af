// Package assistant runs the generate and execute actions of one session.
// The session State is passed into every action and the updated copy is
// returned; the Controller itself holds no per-session data.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/SqlAssist/internal/executor"
	"github.com/JonMunkholm/SqlAssist/internal/extract"
	"github.com/JonMunkholm/SqlAssist/internal/llm"
	"github.com/JonMunkholm/SqlAssist/internal/observability"
	"github.com/JonMunkholm/SqlAssist/internal/prompt"
)

var (
	// ErrBlankQuestion rejects a generate action with nothing to ask.
	ErrBlankQuestion = errors.New("please enter a question")
	// ErrNoStatement means the reply held no recognizable SQL statement.
	ErrNoStatement = errors.New("no SQL statement found in the model's reply")
	// ErrNothingToExecute rejects an execute action before any SQL exists.
	ErrNothingToExecute = errors.New("generate a query before executing it")
)

// Phase is where a session is in the generate/execute cycle.
type Phase string

const (
	Idle       Phase = "idle"
	Generating Phase = "generating"
	Generated  Phase = "generated"
	Executing  Phase = "executing"
	Executed   Phase = "executed"
)

// State is everything one session remembers between actions.
type State struct {
	SampleLabel     string
	Accuracy        prompt.AccuracyLevel
	Question        string
	RawReply        string
	SQL             string
	Result          *executor.Result
	ShowExplanation bool
	Phase           Phase
	Error           string
	Warning         string
}

// NewState returns the state of a fresh session.
func NewState() State {
	return State{
		SampleLabel: prompt.DefaultSampleLabel,
		Accuracy:    prompt.DefaultAccuracy,
		Phase:       Idle,
	}
}

// CanExecute reports whether there is a statement to run.
func (s State) CanExecute() bool {
	return strings.TrimSpace(s.SQL) != ""
}

// Explanation is the raw reply with the extracted SQL removed.
func (s State) Explanation() string {
	return extract.Explanation(s.RawReply, s.SQL)
}

// ToggleExplanation flips the explanation panel.
func ToggleExplanation(st State) State {
	st.ShowExplanation = !st.ShowExplanation
	return st
}

// SelectSample picks a sample question. Unknown labels leave st unchanged.
func SelectSample(st State, label string, catalog prompt.Catalog) State {
	question, ok := catalog.Question(label)
	if !ok {
		return st
	}
	st.SampleLabel = label
	st.Question = question
	return st
}

// Generator produces the raw model reply for prompt parts.
type Generator interface {
	Generate(ctx context.Context, parts []string) (string, error)
	ProviderName() string
}

// Runner executes a statement.
type Runner interface {
	Execute(ctx context.Context, query string) executor.Result
}

type Controller struct {
	Generator Generator
	Runner    Runner
	Prompts   prompt.Builder
	// Policy labels execution metrics; it should match the Runner's policy.
	Policy executor.Policy
	// ResetAfterExecute returns the sample and accuracy selectors to their
	// defaults once an execution completes.
	ResetAfterExecute bool
	Logger            *slog.Logger
}

// Generate normalizes the question, builds the prompt, asks the model and
// extracts the statement. A blank question returns st untouched with
// ErrBlankQuestion. A failed model call returns *llm.GenerationError with the
// banner set in the returned state; a reply without SQL returns ErrNoStatement.
func (c *Controller) Generate(ctx context.Context, st State, question string, level prompt.AccuracyLevel) (State, error) {
	if strings.TrimSpace(question) == "" {
		return st, ErrBlankQuestion
	}

	st.Question = question
	st.Accuracy = level
	st.RawReply = ""
	st.SQL = ""
	st.Result = nil
	st.ShowExplanation = false
	st.Error = ""
	st.Warning = ""
	st.Phase = Generating

	parts := c.Prompts.Build(prompt.NormalizeSalary(question), level)
	provider := c.Generator.ProviderName()

	start := time.Now()
	reply, err := c.Generator.Generate(ctx, parts)
	if err != nil {
		observability.ObserveGeneration(provider, observability.OutcomeError, time.Since(start))
		c.logger().WarnContext(ctx, "generation failed",
			slog.String("provider", provider),
			slog.Any("error", err),
		)
		st.Phase = Idle
		st.Error = "Error: " + err.Error()
		var genErr *llm.GenerationError
		if !errors.As(err, &genErr) {
			err = &llm.GenerationError{Message: err.Error()}
		}
		return st, err
	}

	st.RawReply = reply
	st.SQL = extract.SQL(reply)
	st.Phase = Generated
	if st.SQL == "" {
		observability.ObserveGeneration(provider, observability.OutcomeNoStatement, time.Since(start))
		c.logger().InfoContext(ctx, "no statement in reply", slog.String("provider", provider))
		st.Warning = "Warning: " + ErrNoStatement.Error() + "."
		return st, ErrNoStatement
	}

	observability.ObserveGeneration(provider, observability.OutcomeOK, time.Since(start))
	c.logger().DebugContext(ctx, "statement generated",
		slog.String("provider", provider),
		slog.String("accuracy", string(level)),
	)
	return st, nil
}

// Execute runs the session's statement and stores the result. Database and
// policy failures are part of the Result, not the returned error.
func (c *Controller) Execute(ctx context.Context, st State) (State, error) {
	if !st.CanExecute() {
		return st, ErrNothingToExecute
	}

	st.Error = ""
	st.Warning = ""
	st.Phase = Executing

	start := time.Now()
	result := c.Runner.Execute(ctx, st.SQL)
	observability.ObserveExecution(string(c.Policy), c.outcome(st.SQL, result), time.Since(start))

	st.Result = &result
	st.Phase = Executed
	if c.ResetAfterExecute {
		st.SampleLabel = prompt.DefaultSampleLabel
		st.Accuracy = prompt.DefaultAccuracy
	}
	return st, nil
}

func (c *Controller) outcome(query string, result executor.Result) string {
	switch result.Kind {
	case executor.KindNotice:
		return observability.OutcomeEmpty
	case executor.KindError:
		if c.Policy == executor.Restrictive && executor.Refusal(query) != "" {
			return observability.OutcomeRefused
		}
		return observability.OutcomeError
	default:
		return observability.OutcomeOK
	}
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}
