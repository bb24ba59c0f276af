package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/SqlAssist/internal/assistant"
	"github.com/JonMunkholm/SqlAssist/internal/executor"
	"github.com/JonMunkholm/SqlAssist/internal/llm"
	"github.com/JonMunkholm/SqlAssist/internal/prompt"
	"github.com/JonMunkholm/SqlAssist/internal/schema"
)

type generateRequest struct {
	Question string `json:"question"`
	Accuracy string `json:"accuracy"`
}

type generateResponse struct {
	SQL         string `json:"sql"`
	Reply       string `json:"reply,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Error       string `json:"error,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

func (s *Server) handleAPIGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	level := prompt.DefaultAccuracy
	if strings.TrimSpace(req.Accuracy) != "" {
		parsed, ok := prompt.ParseAccuracyLevel(req.Accuracy)
		if !ok {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown accuracy level %q", req.Accuracy)})
			return
		}
		level = parsed
	}

	st, err := s.controller.Generate(r.Context(), assistant.NewState(), req.Question, level)
	var genErr *llm.GenerationError
	switch {
	case errors.Is(err, assistant.ErrBlankQuestion):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
	case errors.As(err, &genErr):
		respondJSON(w, http.StatusBadGateway, generateResponse{Error: st.Error})
	default:
		respondJSON(w, http.StatusOK, generateResponse{
			SQL:         st.SQL,
			Reply:       st.RawReply,
			Explanation: st.Explanation(),
			Warning:     st.Warning,
		})
	}
}

type executeRequest struct {
	SQL string `json:"sql"`
}

func (s *Server) handleAPIExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	st := assistant.NewState()
	st.SQL = req.SQL
	st, err := s.controller.Execute(r.Context(), st)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "sql is required"})
		return
	}

	status := http.StatusOK
	if st.Result.IsError() {
		status = http.StatusBadRequest
	}
	respondJSON(w, status, st.Result)
}

// handleExportCSV downloads the session's last tabular result.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	sess, entry := s.sessions.open(r)
	entry.mu.Lock()
	result := entry.state.Result
	entry.mu.Unlock()
	s.saveSession(w, r, sess)

	if result == nil || result.Kind != executor.KindRows {
		http.Error(w, "no result to export", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=query_%s.csv", time.Now().Format("2006-01-02")))

	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	if err := csvWriter.Write(result.Columns); err != nil {
		return
	}
	for _, row := range result.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatValue(v)
		}
		if err := csvWriter.Write(record); err != nil {
			return
		}
	}
}

// formatValue renders a result cell; NULL becomes the empty string.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

type schemaResponse struct {
	Tables     []schema.Table `json:"tables"`
	TableCount int            `json:"tableCount"`
	Missing    []string       `json:"missing,omitempty"`
	LoadedAt   string         `json:"loadedAt,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func (s *Server) schemaPayload() schemaResponse {
	snap := s.schema.Snapshot()
	resp := schemaResponse{
		Tables:     snap.Tables,
		TableCount: len(snap.Tables),
	}
	if !snap.LoadedAt.IsZero() {
		resp.LoadedAt = snap.LoadedAt.Format(time.RFC3339)
		resp.Missing = snap.Missing(schema.Expected...)
	}
	if err := s.schema.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if s.schema == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "schema introspection is not configured"})
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(s.schema.Snapshot().Text()))
		return
	}
	respondJSON(w, http.StatusOK, s.schemaPayload())
}

func (s *Server) handleSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	if s.schema == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "schema introspection is not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), schemaTimeout)
	defer cancel()

	if err := s.schema.Refresh(ctx); err != nil {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, s.schemaPayload())
}
