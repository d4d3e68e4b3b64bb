package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/rizzcoach/internal/capture"
	"github.com/ashureev/rizzcoach/internal/coach"
	"github.com/ashureev/rizzcoach/internal/domain"
	"github.com/ashureev/rizzcoach/internal/identity"
	"github.com/ashureev/rizzcoach/internal/session"
)

const (
	maxSessionBody    = 64 << 10
	multipartOverhead = 1 << 20
)

// SessionHandler serves the session store and the send operation.
type SessionHandler struct {
	registry    *session.Registry
	orch        *coach.Orchestrator
	limiter     *RateLimiter
	maxUpload   int64
	turnTimeout time.Duration

	turns sync.WaitGroup
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(registry *session.Registry, orch *coach.Orchestrator, limiter *RateLimiter, maxUploadBytes int64, turnTimeout time.Duration) *SessionHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = capture.DefaultMaxBytes
	}
	return &SessionHandler{
		registry:    registry,
		orch:        orch,
		limiter:     limiter,
		maxUpload:   maxUploadBytes,
		turnTimeout: turnTimeout,
	}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/select", h.Select)
			r.Post("/image", h.UploadImage)
			r.Delete("/image", h.ClearImage)
			r.Post("/messages", h.Send)
		})
	})
}

// Wait blocks until every accepted turn has finished.
func (h *SessionHandler) Wait() {
	h.turns.Wait()
}

// SessionView is a session plus its derived progress fields.
type SessionView struct {
	domain.Session
	State domain.ProfileState `json:"state"`
	Stage domain.Stage        `json:"stage"`
	Busy  bool                `json:"busy"`
}

func (h *SessionHandler) view(sess domain.Session) SessionView {
	busy := h.orch.Busy(sess.ID)
	sess = sess.Redacted()
	return SessionView{
		Session: sess,
		State:   sess.State(),
		Stage:   domain.DeriveStage(&sess, busy),
		Busy:    busy,
	}
}

func (h *SessionHandler) store(r *http.Request) (*session.Store, string) {
	userID := identity.UserIDFromContext(r.Context())
	return h.registry.For(userID), userID
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Store, domain.Session, bool) {
	st, _ := h.store(r)
	sess, ok := st.Get(chi.URLParam(r, "id"))
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return nil, domain.Session{}, false
	}
	return st, sess, true
}

// List returns every session, newest first, and the current selection.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	st, _ := h.store(r)
	current := st.Current()
	sessions := st.List()

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, h.view(s))
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"sessions":   views,
		"current_id": current.ID,
	})
}

// Create starts a new session and selects it.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	st, userID := h.store(r)
	sess := st.CreateSession()
	slog.Info("Session created", "user_id", userID, "session_id", sess.ID)
	JSON(w, http.StatusCreated, h.view(sess))
}

// Get returns one session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, h.view(sess))
}

type updateRequest struct {
	Title             *string `json:"title"`
	Draft             *string `json:"draft"`
	ProfilePanelShown *bool   `json:"profilePanelShown"`
}

// Update renames a session and updates composer state. A blank title is
// ignored rather than rejected.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	st, sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := decodeJSON(w, r, maxSessionBody, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Title != nil {
		st.RenameSession(sess.ID, *req.Title)
	}
	if req.Draft != nil {
		st.StageText(sess.ID, *req.Draft)
	}
	if req.ProfilePanelShown != nil {
		st.MarkProfilePanelShown(sess.ID, *req.ProfilePanelShown)
	}

	updated, _ := st.Get(sess.ID)
	JSON(w, http.StatusOK, h.view(updated))
}

// Delete removes a session. The store always keeps at least one.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	st, userID := h.store(r)
	id := chi.URLParam(r, "id")
	st.DeleteSession(id)
	slog.Info("Session deleted", "user_id", userID, "session_id", id)
	JSON(w, http.StatusOK, map[string]string{"status": "deleted", "current_id": st.CurrentID()})
}

// Select makes a session current.
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	st, sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st.Select(sess.ID)
	JSON(w, http.StatusOK, h.view(sess))
}

// UploadImage captures a multipart "image" field and stages it.
func (h *SessionHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	st, sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		if isTooLarge(err) {
			Error(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		Error(w, http.StatusBadRequest, "image field is required")
		return
	}

	img, err := capture.FromMultipart(files[0], h.maxUpload)
	if err != nil {
		writeCaptureError(w, err)
		return
	}

	st.StageImage(sess.ID, img.Payload, img.MIMEType, img.Preview())
	updated, _ := st.Get(sess.ID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"session": h.view(updated),
		"image": map[string]interface{}{
			"mimeType": img.MIMEType,
			"width":    img.Width,
			"height":   img.Height,
			"size":     img.Size,
		},
	})
}

// ClearImage drops the staged image and the chat-step marker.
func (h *SessionHandler) ClearImage(w http.ResponseWriter, r *http.Request) {
	st, sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st.ClearStagedImage(sess.ID)
	updated, _ := st.Get(sess.ID)
	JSON(w, http.StatusOK, h.view(updated))
}

type sendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// Send accepts a turn, answers 202 with the optimistic user message and
// runs the analysis in the background.
func (h *SessionHandler) Send(w http.ResponseWriter, r *http.Request) {
	st, userID := h.store(r)
	sessionID := chi.URLParam(r, "id")

	if h.limiter != nil && !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	// Only accepted turns count against the quota.
	accepted := false
	defer func() {
		if !accepted && h.limiter != nil {
			h.limiter.Refund(userID)
		}
	}()

	var req sendRequest
	if err := decodeJSON(w, r, h.maxUpload/3*4+maxSessionBody, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	in := coach.Input{Text: req.Text, UserID: userID}
	if req.Image != "" {
		img, err := capture.FromPayload(req.Image, h.maxUpload)
		if err != nil {
			writeCaptureError(w, err)
			return
		}
		in.Image = img
	}

	turn, err := h.orch.Begin(st, sessionID, in)
	switch {
	case errors.Is(err, coach.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, coach.ErrEmptyInput):
		Error(w, http.StatusBadRequest, "text or image is required")
		return
	case errors.Is(err, coach.ErrBusy):
		Error(w, http.StatusConflict, "analysis_in_progress")
		return
	case err != nil:
		slog.Error("Failed to begin turn", "user_id", userID, "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	accepted = true

	h.turns.Add(1)
	go func() {
		defer h.turns.Done()
		ctx := context.WithoutCancel(r.Context())
		if h.turnTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.turnTimeout)
			defer cancel()
		}
		if err := turn.Run(ctx); err != nil {
			slog.Info("Turn finished with error", "user_id", userID, "session_id", sessionID, "error", err)
		}
	}()

	JSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    turn.UserMessage,
		"session_id": sessionID,
		"stage":      stageForAccepted(st, sessionID),
	})
}

func stageForAccepted(st *session.Store, sessionID string) domain.Stage {
	sess, ok := st.Get(sessionID)
	if !ok {
		return domain.StageIdle
	}
	return domain.DeriveStage(&sess, true)
}

func writeCaptureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrUnsupportedType):
		Error(w, http.StatusUnsupportedMediaType, "unsupported file type")
	default:
		Error(w, http.StatusBadRequest, "unreadable image file")
	}
}
