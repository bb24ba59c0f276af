package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/JonMunkholm/SqlAssist/internal/assistant"
	"github.com/JonMunkholm/SqlAssist/internal/prompt"
	"github.com/JonMunkholm/SqlAssist/internal/schema"
)

const blankQuestionWarning = "Please enter a question first."

type levelOption struct {
	Value    string
	Label    string
	Selected bool
}

type homeView struct {
	Title              string
	Samples            []prompt.Sample
	Levels             []levelOption
	State              assistant.State
	Explanation        string
	ExplanationEnabled bool
	Flashes            []string
}

type aboutView struct {
	Title       string
	Examples    []string
	Snapshot    schema.Snapshot
	Missing     []string
	SchemaError string
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	sess, entry := s.sessions.open(r)
	entry.mu.Lock()
	st := entry.state
	entry.mu.Unlock()

	var flashes []string
	for _, f := range sess.Flashes() {
		if msg, ok := f.(string); ok {
			flashes = append(flashes, msg)
		}
	}
	s.saveSession(w, r, sess)

	levels := make([]levelOption, 0, len(prompt.AccuracyLevels()))
	for _, level := range prompt.AccuracyLevels() {
		levels = append(levels, levelOption{
			Value:    string(level),
			Label:    level.Label(),
			Selected: level == st.Accuracy,
		})
	}

	s.render(w, "home", homeView{
		Title:              "LLM SQL Query Generator",
		Samples:            s.catalog.Samples,
		Levels:             levels,
		State:              st,
		Explanation:        st.Explanation(),
		ExplanationEnabled: s.controller.Prompts.Config.IncludeExplanationRequest,
		Flashes:            flashes,
	})
}

func (s *Server) handleAbout(w http.ResponseWriter, _ *http.Request) {
	view := aboutView{
		Title:    "About LLM SQL Query Generator",
		Examples: s.catalog.AboutExamples,
	}
	if s.schema != nil {
		view.Snapshot = s.schema.Snapshot()
		if err := s.schema.Err(); err != nil {
			view.SchemaError = err.Error()
		}
		if !view.Snapshot.LoadedAt.IsZero() {
			view.Missing = view.Snapshot.Missing(schema.Expected...)
		}
	}
	s.render(w, "about", view)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(st assistant.State, _ *sessions.Session) assistant.State {
		return assistant.SelectSample(st, r.FormValue("sample"), s.catalog)
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(st assistant.State, sess *sessions.Session) assistant.State {
		// An unrecognized level carries no tuning instruction.
		level, _ := prompt.ParseAccuracyLevel(r.FormValue("accuracy"))
		next, err := s.controller.Generate(r.Context(), st, r.FormValue("question"), level)
		if errors.Is(err, assistant.ErrBlankQuestion) {
			sess.AddFlash(blankQuestionWarning)
		}
		return next
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(st assistant.State, sess *sessions.Session) assistant.State {
		next, err := s.controller.Execute(r.Context(), st)
		if errors.Is(err, assistant.ErrNothingToExecute) {
			sess.AddFlash("Generate a query before executing it.")
		}
		return next
	})
}

func (s *Server) handleExplanation(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(st assistant.State, _ *sessions.Session) assistant.State {
		return assistant.ToggleExplanation(st)
	})
}

// act runs one action against the session state while holding the session
// lock, then redirects back to the home page.
func (s *Server) act(w http.ResponseWriter, r *http.Request, fn func(assistant.State, *sessions.Session) assistant.State) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	sess, entry := s.sessions.open(r)

	entry.mu.Lock()
	entry.state = fn(entry.state, sess)
	entry.mu.Unlock()

	s.saveSession(w, r, sess)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	if err := sess.Save(r, w); err != nil {
		s.logger.WarnContext(r.Context(), "save session", slog.Any("error", err))
	}
}
