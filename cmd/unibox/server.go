package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"unibox/internal/constants"
	apperrors "unibox/internal/errors"
	"unibox/internal/events"
	"unibox/internal/features"
	"unibox/internal/httputil"
	"unibox/internal/middleware"
	"unibox/internal/models"
	"unibox/internal/service"
	"unibox/internal/tracing"
	"unibox/internal/validation"
	"unibox/internal/versioning"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	operatorUserHeader = "X-Operator-User"
	dateLayout         = "2006-01-02"

	// Slack for the JSON envelope around the content field.
	ingestBodyOverheadBytes = 4096
)

type Server struct {
	cfg        *models.Config
	router     *mux.Router
	logger     *logrus.Logger
	msgService service.MessageService
	analytics  service.AnalyticsService
	history    service.HistoryService
	hub        *events.Hub
	limiter    *RateLimiter
	server     *http.Server
}

func NewServer(cfg *models.Config, msgService service.MessageService, analytics service.AnalyticsService, history service.HistoryService, hub *events.Hub, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		router:     mux.NewRouter(),
		logger:     logger,
		msgService: msgService,
		analytics:  analytics,
		history:    history,
		hub:        hub,
	}

	if cfg.RateLimit.Enabled && features.IsEnabled(features.FlagRateLimiting) {
		s.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute)
	}

	s.setupRoutes()

	// Requests inherit the process-level verbose choice so service-layer
	// logs know whether identifiers may appear unmasked.
	baseCtx := context.WithValue(context.Background(), service.VerboseContextKey, *verbose)

	// Built here, not in Start, so Shutdown never races the serve goroutine.
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	return s
}

func (s *Server) setupRoutes() {
	versionMW := versioning.NewVersionMiddleware(s.logger)

	s.router.Use(middleware.ObservabilityMiddleware(s.logger))
	s.router.Use(versionMW.VersionHandler)
	if features.IsEnabled(features.FlagEnhancedLogging) {
		s.router.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}

	// Liveness and metrics stay outside the rate-limited API prefix so
	// probes and scrapers are never throttled.
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware)
	}

	ingest := api.PathPrefix("/messages/unified").Subrouter()
	ingest.Use(middleware.IngestObservabilityMiddleware(s.logger, "unified"))
	ingest.HandleFunc("", s.handleUnifiedIngest()).Methods(http.MethodPost)

	api.HandleFunc("/messages/unread-count", s.handleUnreadCount()).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id:[0-9]+}", s.handleGetMessage()).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id:[0-9]+}/read", s.handleMarkRead()).Methods(http.MethodPost)

	api.HandleFunc("/conversations", s.handleListConversations()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id:[0-9]+}", s.handleGetConversation()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id:[0-9]+}/send", s.handleRecordOutgoing()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id:[0-9]+}/category", s.handleSetCategory()).Methods(http.MethodPost)

	api.HandleFunc("/channels", s.handleListChannels()).Methods(http.MethodGet)

	if features.IsEnabled(features.FlagDashboardAnalytics) {
		api.HandleFunc("/analytics/dashboard", s.handleDashboard()).Methods(http.MethodGet)
	}
	if features.IsEnabled(features.FlagWeeklyReports) {
		api.HandleFunc("/analytics/weekly", s.handleWeekly()).Methods(http.MethodGet)
	}

	api.HandleFunc("/history", s.handleHistory()).Methods(http.MethodGet)
	api.HandleFunc("/history/stats", s.handleHistoryStats()).Methods(http.MethodGet)

	if s.hub != nil {
		api.Handle("/events/ws", s.hub).Methods(http.MethodGet)
	}
}

func (s *Server) Start() error {
	s.logger.Infof("Starting server on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r)
		if !s.limiter.Allow(ip) {
			s.writeError(w, r, apperrors.NewRateLimitError(s.cfg.RateLimit.RequestsPerMinute, "1m"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler implementations

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.WithError(err).Warn("Failed to write health response")
		}
	}
}

type ingestResponse struct {
	Message   *models.Message `json:"message"`
	Created   bool            `json:"created"`
	Duplicate bool            `json:"duplicate"`
}

// handleUnifiedIngest accepts the canonical event every channel adapter
// posts. A replayed event is not an error: it answers 200 with the
// originally stored message and duplicate=true.
func (s *Server) handleUnifiedIngest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBody := int64(s.cfg.Ingest.MaxContentLength) + ingestBodyOverheadBytes
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		var body []byte
		var err error
		if features.IsEnabled(features.FlagIngestAuth) {
			body, err = verifyIngestSignature(r, s.cfg.Server.WebhookSecret)
			if err != nil {
				s.writeError(w, r, apperrors.NewAuthError(err.Error()))
				return
			}
		} else {
			body, err = io.ReadAll(r.Body)
			if err != nil {
				s.writeError(w, r, apperrors.NewValidationError("body", "", "failed to read request body"))
				return
			}
		}

		var event models.MessageEvent
		if err := json.Unmarshal(body, &event); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("body", "", "invalid JSON payload"))
			return
		}

		msg, created, err := s.msgService.SubmitMessage(r.Context(), &event)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.recordHistory(r, models.ActionTypeMessageIngest, "Ingested message", map[string]interface{}{
			"channel":         event.ChannelName,
			"conversation_id": msg.ConversationID,
			"message_id":      msg.ID,
			"duplicate":       !created,
		})

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		s.writeJSON(w, status, ingestResponse{Message: msg, Created: created, Duplicate: !created})
	}
}

type sendRequest struct {
	Content           string  `json:"content"`
	MessageType       string  `json:"message_type,omitempty"`
	ExternalMessageID *string `json:"external_message_id,omitempty"`
}

func (s *Server) handleRecordOutgoing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req sendRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, created, err := s.msgService.RecordOutgoing(r.Context(), id, req.Content, req.MessageType, req.ExternalMessageID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.recordHistory(r, models.ActionTypeMessageSend, "Recorded outgoing message", map[string]interface{}{
			"conversation_id": id,
			"message_id":      msg.ID,
			"duplicate":       !created,
		})

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		s.writeJSON(w, status, ingestResponse{Message: msg, Created: created, Duplicate: !created})
	}
}

type categoryRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleSetCategory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req categoryRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		conv, err := s.msgService.SetCategory(r.Context(), id, req.Category)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.recordHistory(r, models.ActionTypeCategoryChange, "Changed conversation category", map[string]interface{}{
			"conversation_id": id,
			"category":        req.Category,
		})

		s.writeJSON(w, http.StatusOK, conv)
	}
}

func (s *Server) handleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.msgService.MarkRead(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.recordHistory(r, models.ActionTypeMessageRead, "Marked message read", map[string]interface{}{
			"message_id": id,
		})

		w.WriteHeader(http.StatusNoContent)
	}
}

type unreadResponse struct {
	ConversationID *int64 `json:"conversation_id,omitempty"`
	Unread         int64  `json:"unread"`
}

func (s *Server) handleUnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("conversation_id")
		if raw == "" {
			total, err := s.msgService.TotalUnreadCount(r.Context())
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			s.writeJSON(w, http.StatusOK, unreadResponse{Unread: total})
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, apperrors.NewValidationError("conversation_id", raw, "must be a numeric id"))
			return
		}

		count, err := s.msgService.UnreadCount(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, unreadResponse{ConversationID: &id, Unread: count})
	}
}

type conversationListResponse struct {
	Conversations []models.Conversation `json:"conversations"`
	Count         int                   `json:"count"`
}

func (s *Server) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit, err := queryInt(q.Get("limit"), "limit")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		offset, err := queryInt(q.Get("offset"), "offset")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		conversations, err := s.msgService.ListConversations(r.Context(), q.Get("channel"), q.Get("category"), limit, offset)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, conversationListResponse{Conversations: conversations, Count: len(conversations)})
	}
}

func (s *Server) handleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		conv, err := s.msgService.GetConversation(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, conv)
	}
}

type messageListResponse struct {
	Messages []models.Message `json:"messages"`
	Count    int              `json:"count"`
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		q := r.URL.Query()
		limit, err := queryInt(q.Get("limit"), "limit")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		offset, err := queryInt(q.Get("offset"), "offset")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		messages, err := s.msgService.ListMessages(r.Context(), id, limit, offset)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, messageListResponse{Messages: messages, Count: len(messages)})
	}
}

func (s *Server) handleGetMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, err := s.msgService.GetMessage(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, msg)
	}
}

type channelListResponse struct {
	Channels []models.Channel `json:"channels"`
}

// handleListChannels serves the channel catalog. Inactive channels still
// resolve existing conversations, so operators can ask for them explicitly.
func (s *Server) handleListChannels() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeInactive := r.URL.Query().Get("include_inactive") == "true"

		channels := s.msgService.Channels()
		if !includeInactive {
			active := make([]models.Channel, 0, len(channels))
			for _, ch := range channels {
				if ch.IsActive {
					active = append(active, ch)
				}
			}
			channels = active
		}
		s.writeJSON(w, http.StatusOK, channelListResponse{Channels: channels})
	}
}

func (s *Server) handleDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		end := time.Now().UTC()
		if raw := q.Get("end"); raw != "" {
			parsed, err := parseWindowBound(raw, true)
			if err != nil {
				s.writeError(w, r, apperrors.NewValidationError("end", raw, "must be RFC3339 or YYYY-MM-DD"))
				return
			}
			end = parsed
		}

		start := end.AddDate(0, 0, -constants.DaysPerWeek)
		if raw := q.Get("start"); raw != "" {
			parsed, err := parseWindowBound(raw, false)
			if err != nil {
				s.writeError(w, r, apperrors.NewValidationError("start", raw, "must be RFC3339 or YYYY-MM-DD"))
				return
			}
			start = parsed
		}

		if !start.Before(end) {
			s.writeError(w, r, apperrors.NewValidationError("start", start.Format(time.RFC3339), "start must be before end"))
			return
		}

		dashboard, err := s.analytics.Dashboard(r.Context(), start, end, q.Get("channel"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, dashboard)
	}
}

func (s *Server) handleWeekly() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		comparison, err := s.analytics.WeeklyComparison(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, comparison)
	}
}

type historyListResponse struct {
	Entries []models.HistoryEntry `json:"entries"`
	Count   int                   `json:"count"`
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit, err := queryInt(q.Get("limit"), "limit")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		offset, err := queryInt(q.Get("offset"), "offset")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		entries, err := s.history.List(r.Context(), models.HistoryFilter{
			User:       q.Get("user"),
			ActionType: q.Get("action_type"),
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, historyListResponse{Entries: entries, Count: len(entries)})
	}
}

func (s *Server) handleHistoryStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.history.Stats(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, stats)
	}
}

// Helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField(service.LogFieldEndpoint, r.URL.Path).Error("Request failed")
	}
	resp := apperrors.ToHTTPResponse(err, tracing.GetRequestID(r.Context()))
	s.writeJSON(w, status, resp)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBody := int64(s.cfg.Ingest.MaxContentLength) + ingestBodyOverheadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := validation.ValidateHTTPRequestSize(r, maxBody); err != nil {
		return err
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("body", "", "invalid JSON payload")
	}
	return nil
}

func (s *Server) recordHistory(r *http.Request, actionType, action string, details map[string]interface{}) {
	if s.history == nil || !s.history.Enabled() {
		return
	}

	var detailsJSON *string
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			str := string(raw)
			detailsJSON = &str
		}
	}

	ip := httputil.GetClientIP(r)
	entry := &models.HistoryEntry{
		User:       operatorUser(r),
		Action:     action,
		ActionType: actionType,
		Details:    detailsJSON,
		Endpoint:   r.URL.Path,
		Method:     r.Method,
		ClientIP:   &ip,
	}
	if err := s.history.Record(r.Context(), entry); err != nil {
		s.logger.WithError(err).Warn("Failed to record history entry")
	}
}

func operatorUser(r *http.Request) string {
	if user := r.Header.Get(operatorUserHeader); user != "" {
		return user
	}
	return constants.DefaultOperatorIdentity
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError("id", raw, "must be a numeric id")
	}
	return id, nil
}

func queryInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(name, raw, "must be an integer")
	}
	return value, nil
}

// parseWindowBound parses an analytics window bound. A date-only end bound
// names the whole day, so it resolves to the following midnight.
func parseWindowBound(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24 * time.Hour)
	}
	return t.UTC(), nil
}
