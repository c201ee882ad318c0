// Package httpapi exposes the support workflow over HTTP: a chat endpoint
// that starts walks, approval endpoints that decide and resume them, and
// the usual health and metrics surfaces.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/supportgraph-go/agent"
	"github.com/dshills/supportgraph-go/approval"
	"github.com/dshills/supportgraph-go/domain"
	"github.com/dshills/supportgraph-go/graph"
)

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID   string `json:"conversation_id"`
	Response         string `json:"response"`
	RequiresApproval bool   `json:"requires_approval"`
	ApprovalID       string `json:"approval_id,omitempty"`
}

type decisionRequest struct {
	Status string `json:"status"`
}

type decisionResponse struct {
	ApprovalID string `json:"approval_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// Deps wires the router's collaborators.
type Deps struct {
	Agent     *agent.Agent
	Approvals *approval.Service
	Logger    *slog.Logger

	// Registry, when set, serves /metrics from this registry instead of
	// the default one.
	Registry *prometheus.Registry
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Conversation history lives with the router: each completed walk's
	// rebuilt history feeds the next message on the same conversation.
	var historyMu sync.Mutex
	histories := make(map[string][]domain.Message)

	loadHistory := func(conversationID string) []domain.Message {
		historyMu.Lock()
		defer historyMu.Unlock()
		return histories[conversationID]
	}
	saveHistory := func(conversationID string, history []domain.Message) {
		historyMu.Lock()
		defer historyMu.Unlock()
		histories[conversationID] = history
	}

	r := chi.NewRouter()

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if deps.Registry != nil {
			promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
			return
		}
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ---------------- CHAT ----------------

		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			req, err := decodeChatRequest(r)
			if err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			if req.Message == "" {
				http.Error(w, "message is required", http.StatusBadRequest)
				return
			}

			conversationID := req.ConversationID
			if conversationID == "" {
				conversationID = "conv-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
			}

			result, err := deps.Agent.Start(r.Context(), conversationID, req.Message, loadHistory(conversationID))
			if err != nil {
				if errors.Is(err, graph.ErrWalkInProgress) {
					http.Error(w, "conversation is already being processed", http.StatusConflict)
					return
				}
				logger.Error("chat failed", "conversation_id", conversationID, "error", err)
				http.Error(w, "failed to process message", http.StatusInternalServerError)
				return
			}

			if !result.RequiresApproval {
				saveHistory(conversationID, result.State.History)
			}

			logger.Info("chat handled",
				"conversation_id", conversationID,
				"requires_approval", result.RequiresApproval)

			writeJSON(w, http.StatusOK, chatResponse{
				ConversationID:   conversationID,
				Response:         result.Response,
				RequiresApproval: result.RequiresApproval,
				ApprovalID:       result.ApprovalID,
			})
		})

		// ---------------- APPROVALS ----------------

		r.Get("/approvals/{approvalID}", func(w http.ResponseWriter, r *http.Request) {
			approvalID := chi.URLParam(r, "approvalID")

			rec, err := deps.Approvals.Get(r.Context(), approvalID)
			if err != nil {
				if errors.Is(err, approval.ErrNotFound) {
					http.Error(w, "approval not found", http.StatusNotFound)
					return
				}
				logger.Error("get approval failed", "approval_id", approvalID, "error", err)
				http.Error(w, "failed to load approval", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, rec)
		})

		r.Post("/approvals/{approvalID}", func(w http.ResponseWriter, r *http.Request) {
			approvalID := chi.URLParam(r, "approvalID")

			req, err := decodeDecisionRequest(r)
			if err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			status := domain.ApprovalStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
			if !status.Decided() {
				http.Error(w, "status must be APPROVED or REJECTED", http.StatusBadRequest)
				return
			}

			rec, err := deps.Approvals.Decide(r.Context(), approvalID, status)
			if err != nil {
				switch {
				case errors.Is(err, approval.ErrNotFound):
					http.Error(w, "approval not found", http.StatusNotFound)
				case errors.Is(err, approval.ErrAlreadyDecided):
					http.Error(w, "approval already decided", http.StatusConflict)
				default:
					logger.Error("decide approval failed", "approval_id", approvalID, "error", err)
					http.Error(w, "failed to update approval", http.StatusInternalServerError)
				}
				return
			}

			message := decisionMessage(rec, status)

			// Resume the suspended conversation so the decision takes
			// effect. A lost binding degrades to just recording the
			// decision.
			conversationID, err := deps.Approvals.ThreadFor(r.Context(), approvalID)
			if err != nil {
				logger.Warn("no conversation bound to approval", "approval_id", approvalID)
				writeJSON(w, http.StatusOK, decisionResponse{
					ApprovalID: approvalID,
					Status:     strings.ToLower(string(status)),
					Message:    message,
				})
				return
			}

			result, err := deps.Agent.Resume(r.Context(), conversationID)
			if err != nil {
				if errors.Is(err, graph.ErrWalkInProgress) {
					http.Error(w, "conversation is already being processed", http.StatusConflict)
					return
				}
				logger.Error("resume failed", "conversation_id", conversationID, "error", err)
				message += " The conversation could not be resumed."
				writeJSON(w, http.StatusOK, decisionResponse{
					ApprovalID: approvalID,
					Status:     strings.ToLower(string(status)),
					Message:    message,
				})
				return
			}

			if !result.RequiresApproval {
				saveHistory(conversationID, result.State.History)
			}
			if result.Response != "" {
				message += " Agent response: " + result.Response
			}

			logger.Info("approval decided",
				"approval_id", approvalID,
				"status", status,
				"conversation_id", conversationID)

			writeJSON(w, http.StatusOK, decisionResponse{
				ApprovalID: approvalID,
				Status:     strings.ToLower(string(status)),
				Message:    message,
			})
		})
	})

	return r
}

func decisionMessage(rec approval.Record, status domain.ApprovalStatus) string {
	return "Action " + string(rec.Action) + " for order " + rec.OrderID +
		" has been " + strings.ToLower(string(status)) + "."
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeChatRequest(r *http.Request) (chatRequest, error) {
	var req chatRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return chatRequest{}, err
	}
	req.Message = strings.TrimSpace(req.Message)
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	return req, nil
}

func decodeDecisionRequest(r *http.Request) (decisionRequest, error) {
	var req decisionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return decisionRequest{}, err
	}
	return req, nil
}

func decodeJSONBody(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("request body required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}
	return nil
}
