package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dgallion1/legalparse/internal/hierarchy"
)

type parseRequest struct {
	Lines []string `json:"lines"`
	// Text is split on newlines when Lines is empty.
	Text string `json:"text"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	lines := req.Lines
	if len(lines) == 0 && req.Text != "" {
		lines = strings.Split(strings.ReplaceAll(req.Text, "\r\n", "\n"), "\n")
	}

	res, err := s.orchestrator.Parse(lines)
	if errors.Is(err, hierarchy.ErrInputTooLarge) {
		jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		jsonError(w, "parse failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if res.Diagnostics == nil {
		res.Diagnostics = []hierarchy.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, res)
}

type ruleInfo struct {
	Kind     string   `json:"kind"`
	Name     string   `json:"name"`
	Rank     int      `json:"rank"`
	Aliases  []string `json:"aliases,omitempty"`
	Examples []string `json:"examples,omitempty"`
}

// handleGrammar lists the structural markers the service recognizes, outer to
// inner.
func (s *Server) handleGrammar(w http.ResponseWriter, r *http.Request) {
	g := s.orchestrator.Parser().Grammar()
	rules := make([]ruleInfo, 0, len(g.Rules()))
	for _, rule := range g.Rules() {
		rules = append(rules, ruleInfo{
			Kind:     string(rule.Kind),
			Name:     rule.Name,
			Rank:     rule.Rank,
			Aliases:  rule.Aliases,
			Examples: rule.Examples,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  g.Name(),
		"rules": rules,
	})
}
