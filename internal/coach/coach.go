// Package coach runs one coaching turn: it gates on profile state, calls the
// analysis client and folds the outcome into the originating session.
package coach

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/rizzcoach/internal/analysis"
	"github.com/ashureev/rizzcoach/internal/capture"
	"github.com/ashureev/rizzcoach/internal/domain"
	"github.com/ashureev/rizzcoach/internal/session"
)

var (
	// ErrEmptyInput is returned by Begin when there is neither text nor image.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy is returned by Begin while the session has a turn in flight.
	ErrBusy = errors.New("analysis already in progress")
	// ErrSessionNotFound is returned by Begin for an unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMissingProfileImage means a profile must be established from a screenshot first.
	ErrMissingProfileImage = errors.New("profile image required")

	errTurnFinished = errors.New("turn already run")
)

// User-facing transcript texts.
const (
	MsgMissingProfileImage = "請先上傳對方的個人檔案截圖，才能開始分析。"
	MsgProfileFailed       = "無法分析個人檔案，請確認圖片清晰度。"
	MsgChatFailed          = "無法分析對話內容，請確認圖片清晰度。"
	MsgConfiguration       = "服務設定錯誤：尚未設定分析金鑰，請聯絡管理員。"

	companionCoachTip = "第一句話很重要，選擇一個最符合你個性的開場白，並記得保持輕鬆自然的態度！"
)

// Input is what the user submits in one send.
type Input struct {
	Text string
	// Image overrides the session's staged image when set.
	Image *capture.Image
	// UserID is used for audit logging only.
	UserID string
}

// Orchestrator coordinates sends across sessions. It holds one in-flight
// flag per session.
type Orchestrator struct {
	client     analysis.Client
	convLogger ConversationLogger
	logger     *slog.Logger
	onFatal    func(error)

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithConversationLogger attaches the audit trail.
func WithConversationLogger(l ConversationLogger) Option {
	return func(o *Orchestrator) { o.convLogger = l }
}

// WithLogger overrides the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithFatalHook registers the callback invoked on configuration errors.
func WithFatalHook(fn func(error)) Option {
	return func(o *Orchestrator) { o.onFatal = fn }
}

// New creates an orchestrator over client.
func New(client analysis.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:     client,
		convLogger: NoopConversationLogger(),
		logger:     slog.Default(),
		inFlight:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether sessionID has a turn in flight.
func (o *Orchestrator) Busy(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[sessionID]
	return ok
}

func (o *Orchestrator) acquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inFlight[sessionID]; ok {
		return false
	}
	o.inFlight[sessionID] = struct{}{}
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, sessionID)
}

// Turn is an accepted send whose analysis has not run yet.
type Turn struct {
	o         *Orchestrator
	store     *session.Store
	sessionID string
	userID    string
	text      string
	image     *capture.Image

	// UserMessage is the optimistic transcript entry, already appended.
	UserMessage domain.Message

	once sync.Once
}

// Begin validates input, claims the session and appends the user message.
// The caller must call Run exactly once on the returned Turn.
func (o *Orchestrator) Begin(store *session.Store, sessionID string, in Input) (*Turn, error) {
	sess, ok := store.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	text := strings.TrimSpace(in.Text)
	if text == "" && in.Image == nil && !sess.Pending.HasImage() {
		return nil, ErrEmptyInput
	}
	if !o.acquire(sessionID) {
		return nil, ErrBusy
	}

	// Read and clear the composer in one step so an image staged meanwhile
	// is either sent now or kept for the next turn.
	pending, claimed := store.ClaimPending(sessionID, func(p domain.PendingInput) bool {
		return text != "" || in.Image != nil || p.HasImage()
	})
	if !claimed {
		o.release(sessionID)
		if _, ok := store.Get(sessionID); !ok {
			return nil, ErrSessionNotFound
		}
		return nil, ErrEmptyInput
	}
	img := in.Image
	if img == nil && pending.HasImage() {
		img = &capture.Image{Payload: pending.Image, MIMEType: pending.ImageMIME}
	}

	msg := domain.Message{Role: domain.RoleUser, Type: domain.MessageText, Content: text}
	if img != nil {
		msg.Image = img.Preview()
	}
	appended := store.AppendMessages(sessionID, msg)
	if len(appended) == 1 {
		msg = appended[0]
	}

	o.convLogger.Log(ConversationLogEvent{
		UserID:    in.UserID,
		SessionID: sessionID,
		EventType: EventUserMessage,
		HasImage:  img != nil,
		Content:   text,
	})

	return &Turn{
		o:           o,
		store:       store,
		sessionID:   sessionID,
		userID:      in.UserID,
		text:        text,
		image:       img,
		UserMessage: msg,
	}, nil
}

// SessionID returns the originating session.
func (t *Turn) SessionID() string { return t.sessionID }

// Run performs the analysis and folds the outcome into the originating
// session, whichever session is selected by then. It releases the session's
// in-flight flag and returns the analysis error, if any.
func (t *Turn) Run(ctx context.Context) error {
	err := errTurnFinished
	t.once.Do(func() {
		defer t.o.release(t.sessionID)
		err = t.run(ctx)
	})
	return err
}

func (t *Turn) run(ctx context.Context) error {
	sess, ok := t.store.Get(t.sessionID)
	if !ok {
		t.o.logger.Info("Session deleted before analysis", "session_id", t.sessionID)
		return ErrSessionNotFound
	}

	start := time.Now()
	if sess.State() == domain.StateNoProfile {
		return t.establishProfile(ctx, start)
	}
	return t.adviseChat(ctx, sess.ActiveProfile, start)
}

func (t *Turn) establishProfile(ctx context.Context, start time.Time) error {
	if t.image == nil {
		t.appendError(MsgMissingProfileImage)
		t.audit(EventAnalysisError, "", ErrMissingProfileImage, start)
		return ErrMissingProfileImage
	}

	profile, err := t.o.client.AnalyzeProfile(ctx, analysis.ProfileRequest{
		Image:    t.image.Payload,
		MIMEType: t.image.MIMEType,
		Note:     t.text,
	})
	if err != nil {
		t.fail(MsgProfileFailed, err, start)
		return err
	}

	t.store.EstablishProfile(t.sessionID, profile,
		domain.Message{Role: domain.RoleAssistant, Type: domain.MessageProfileAnalysis, ProfileData: profile},
		domain.Message{Role: domain.RoleAssistant, Type: domain.MessageChatAdvice, ChatAdvice: companionAdvice(profile)},
	)
	t.audit(EventProfileAnalysis, profile.Summary, nil, start)
	t.o.logger.Info("Profile established", "session_id", t.sessionID, "openers", len(profile.OpeningLines))
	return nil
}

func (t *Turn) adviseChat(ctx context.Context, profile *domain.ProfileRecord, start time.Time) error {
	req := analysis.ChatRequest{ProfileContext: profile, Note: t.text}
	if t.image != nil {
		payload := t.image.Payload
		req.Image = &payload
		req.MIMEType = t.image.MIMEType
	}

	advice, err := t.o.client.AnalyzeChat(ctx, req)
	if err != nil {
		t.fail(MsgChatFailed, err, start)
		return err
	}

	t.store.AppendMessages(t.sessionID, domain.Message{
		Role: domain.RoleAssistant, Type: domain.MessageChatAdvice, ChatAdvice: advice,
	})
	t.store.MarkChatComplete(t.sessionID)
	t.audit(EventChatAdvice, advice.SituationAnalysis, nil, start)
	return nil
}

func (t *Turn) fail(userText string, err error, start time.Time) {
	if errors.Is(err, analysis.ErrConfiguration) {
		userText = MsgConfiguration
		t.o.logger.Error("Analysis not configured", "session_id", t.sessionID, "error", err)
		if t.o.onFatal != nil {
			t.o.onFatal(err)
		}
	} else {
		t.o.logger.Warn("Analysis failed", "session_id", t.sessionID, "error", err)
	}
	t.appendError(userText)
	t.audit(EventAnalysisError, "", err, start)
}

func (t *Turn) appendError(text string) {
	t.store.AppendMessages(t.sessionID, domain.Message{
		Role: domain.RoleAssistant, Type: domain.MessageError, Content: text,
	})
}

func (t *Turn) audit(eventType, content string, err error, start time.Time) {
	ev := ConversationLogEvent{
		UserID:    t.userID,
		SessionID: t.sessionID,
		EventType: eventType,
		Mode:      string(t.o.client.Mode()),
		HasImage:  t.image != nil,
		Content:   content,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	t.o.convLogger.Log(ev)
}

// Send is Begin followed by Run.
func (o *Orchestrator) Send(ctx context.Context, store *session.Store, sessionID string, in Input) error {
	turn, err := o.Begin(store, sessionID, in)
	if err != nil {
		return err
	}
	return turn.Run(ctx)
}

// companionAdvice presents a profile's opening lines as reply advice.
func companionAdvice(p *domain.ProfileRecord) *domain.ReplyAdvice {
	name := p.Name()
	if name == "" {
		name = "對方"
	}
	return &domain.ReplyAdvice{
		SituationAnalysis: "已完成" + name + "的個人檔案分析！這裡有一些專屬的破冰開場白建議：",
		Suggestions:       append([]domain.Suggestion(nil), p.OpeningLines...),
		CoachTip:          companionCoachTip,
	}
}
