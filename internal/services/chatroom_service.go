// Package services – ChatroomService
//
// This file implements ChatroomService, the application-level component that
// owns the chatroom lifecycle: creation, cache-backed listing, message
// pagination, the send-message pipeline (append user message, enqueue a
// generation job, return immediately), and the worker-side job processing
// that appends the AI reply.
//
// Message appends are serialized per chatroom through striped locks so a
// producer and a worker (or two workers) writing into the same conversation
// cannot lose each other's appends. Cache entries for a user's chatroom list
// are invalidated on every mutating write, including worker-side appends.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// chatroom/user identifiers where applicable.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/deepanshu1531/gemini-backend-clone/internal/ai"
	"github.com/deepanshu1531/gemini-backend-clone/internal/cache"
	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
)

const (
	// default titles considered placeholders, eligible for auto-generation
	defaultTitleNew      = "New Chat"
	defaultTitleUntitled = "Untitled"

	// appendStripes sizes the per-chatroom lock table.
	appendStripes = 64
)

// ChatroomRepo defines the repository contract required by ChatroomService.
type ChatroomRepo interface {
	// CreateChatroom inserts a new chatroom row for the given user.
	CreateChatroom(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Chatroom, error)

	// GetChatroom fetches a chatroom by ID ensuring it belongs to the user.
	GetChatroom(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Chatroom, error)

	// ListChatroomSummaries returns the user's chatrooms ordered by last
	// update descending, message bodies excluded.
	ListChatroomSummaries(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatroomSummary, error)

	// AppendMessage inserts a message and touches the chatroom's updated_at.
	AppendMessage(ctx context.Context, db *gorm.DB, chatroomID, sender, content string) (*domain.Message, error)

	// CountMessages returns the number of messages in a chatroom.
	CountMessages(ctx context.Context, db *gorm.DB, chatroomID string) (int64, error)

	// ListMessagesPage returns a page of messages in insertion order.
	ListMessagesPage(ctx context.Context, db *gorm.DB, chatroomID string, offset, limit int) ([]domain.Message, error)

	// UpdateChatroomTitle replaces a chatroom's title.
	UpdateChatroomTitle(ctx context.Context, db *gorm.DB, id, title string) error
}

// Enqueuer is the durable queue contract the send-message pipeline needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, chatroomID, userID, content string) (*domain.Job, error)
}

// ChatroomService coordinates chatroom persistence, the list cache, the
// generation queue, and the AI collaborator.
type ChatroomService struct {
	DB        *gorm.DB
	Repo      ChatroomRepo
	Cache     cache.Store
	CacheTTL  time.Duration // the listing snapshot lifetime
	Queue     Enqueuer
	Responder ai.Responder
	Log       zerolog.Logger

	// Optional guards
	MaxPromptRunes int

	// Title generation config
	TitleLocale language.Tag
	TitleMaxLen int

	appendLocks [appendStripes]sync.Mutex
}

// Create inserts a new chatroom owned by userID and invalidates the user's
// cached listing. Blank titles fall back to the default.
func (s *ChatroomService) Create(ctx context.Context, userID, title string) (*domain.Chatroom, error) {
	tr := otel.Tracer("services/ChatroomService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	title = normalizeTitle(title)
	if title == "" {
		title = defaultTitleNew
	}
	room, err := s.Repo.CreateChatroom(ctx, s.DB, userID, s.clipTitle(title))
	if err != nil {
		return nil, err
	}
	s.invalidateList(ctx, userID)
	return room, nil
}

// List returns the user's chatroom summaries through the read-through
// cache: a fresh cache entry is served without touching the store; a miss
// reads the store, repopulates the cache with the configured TTL, and
// returns the fresh data. fromCache reports which path served the request.
func (s *ChatroomService) List(ctx context.Context, userID string) (items []domain.ChatroomSummary, fromCache bool, err error) {
	tr := otel.Tracer("services/ChatroomService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	key := cache.ChatroomListKey(userID)
	if raw, ok, cerr := s.Cache.Get(ctx, key); cerr == nil && ok {
		if jerr := json.Unmarshal(raw, &items); jerr == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return items, true, nil
		}
		// An undecodable entry is dropped and treated as a miss.
		_ = s.Cache.Del(ctx, key)
	} else if cerr != nil {
		// Cache trouble must not take listings down; fall through to the store.
		s.Log.Warn().Err(cerr).Str("user_id", userID).Msg("cache read failed")
	}

	items, err = s.Repo.ListChatroomSummaries(ctx, s.DB, userID)
	if err != nil {
		return nil, false, err
	}
	if raw, jerr := json.Marshal(items); jerr == nil {
		ttl := s.cacheTTL()
		if serr := s.Cache.Set(ctx, key, raw, ttl); serr != nil {
			s.Log.Warn().Err(serr).Str("user_id", userID).Msg("cache write failed")
		}
	}
	return items, false, nil
}

// Get returns one chatroom owned by userID together with a page of its
// messages in insertion order.
func (s *ChatroomService) Get(ctx context.Context, userID, chatroomID string, page, pageSize int) (*domain.Chatroom, []domain.Message, int64, error) {
	tr := otel.Tracer("services/ChatroomService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("chatroom.id", chatroomID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	room, err := s.Repo.GetChatroom(ctx, s.DB, chatroomID, userID)
	if err != nil {
		return nil, nil, 0, ErrChatroomNotFound
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountMessages(ctx, s.DB, chatroomID)
	if err != nil {
		return nil, nil, 0, err
	}
	if total == 0 {
		return room, []domain.Message{}, 0, nil
	}
	msgs, err := s.Repo.ListMessagesPage(ctx, s.DB, chatroomID, offset, pageSize)
	if err != nil {
		return nil, nil, 0, err
	}
	return room, msgs, total, nil
}

// SendMessage validates the prompt, verifies chatroom ownership, appends the
// user message, and enqueues a generation job. It returns as soon as the job
// is durably persisted; the AI reply arrives later via the worker pool.
func (s *ChatroomService) SendMessage(ctx context.Context, userID, chatroomID, content string) (*domain.Message, *domain.Job, error) {
	tr := otel.Tracer("services/ChatroomService")
	ctx, span := tr.Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("chatroom.id", chatroomID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(content) > s.MaxPromptRunes {
		return nil, nil, ErrTooLong
	}

	room, err := s.Repo.GetChatroom(ctx, s.DB, chatroomID, userID)
	if err != nil {
		return nil, nil, ErrChatroomNotFound
	}

	msg, err := s.appendLocked(ctx, chatroomID, domain.SenderUser, content)
	if err != nil {
		return nil, nil, err
	}

	// Auto-title if placeholder (best effort).
	if s.shouldAutoTitle(room.Title) {
		if gen := s.generateTitleFromPrompt(content); gen != "" {
			if uerr := s.Repo.UpdateChatroomTitle(ctx, s.DB, chatroomID, s.clipTitle(gen)); uerr != nil {
				s.Log.Warn().Err(uerr).Str("chatroom_id", chatroomID).Msg("auto-title failed")
			}
		}
	}

	s.invalidateList(ctx, userID)

	job, err := s.Queue.Enqueue(ctx, chatroomID, userID, content)
	if err != nil {
		return nil, nil, err
	}
	return msg, job, nil
}

// Process executes one leased generation job: call the AI collaborator with
// the job's content and append the reply to the chatroom. It implements
// queue.Processor; any error is a recoverable failure that counts against
// the job's retry budget.
func (s *ChatroomService) Process(ctx context.Context, job *domain.Job) error {
	tr := otel.Tracer("services/ChatroomService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("chatroom.id", job.ChatroomID),
		),
	)
	defer span.End()

	reply, err := s.Responder.GenerateReply(ctx, job.Content)
	if err != nil {
		return err
	}

	// The chatroom may have vanished while the job waited.
	if _, err := s.Repo.GetChatroom(ctx, s.DB, job.ChatroomID, job.UserID); err != nil {
		return ErrChatroomNotFound
	}
	if _, err := s.appendLocked(ctx, job.ChatroomID, domain.SenderAI, reply); err != nil {
		return err
	}
	s.invalidateList(ctx, job.UserID)
	return nil
}

// appendLocked serializes message appends per chatroom through a striped
// lock so concurrent producers and workers cannot interleave their
// read-modify-write cycles on the same conversation.
func (s *ChatroomService) appendLocked(ctx context.Context, chatroomID, sender, content string) (*domain.Message, error) {
	lock := &s.appendLocks[stripeFor(chatroomID)]
	lock.Lock()
	defer lock.Unlock()

	m, err := s.Repo.AppendMessage(ctx, s.DB, chatroomID, sender, content)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatroomNotFound
	}
	return m, err
}

// invalidateList drops the user's cached chatroom list. Failures are logged
// only; the TTL still bounds staleness.
func (s *ChatroomService) invalidateList(ctx context.Context, userID string) {
	if err := s.Cache.Del(ctx, cache.ChatroomListKey(userID)); err != nil {
		s.Log.Warn().Err(err).Str("user_id", userID).Msg("cache invalidation failed")
	}
}

// cacheTTL returns the configured listing TTL, defaulting to 600 seconds.
func (s *ChatroomService) cacheTTL() time.Duration {
	if s.CacheTTL > 0 {
		return s.CacheTTL
	}
	return 600 * time.Second
}

// stripeFor maps a chatroom id onto a lock stripe.
func stripeFor(chatroomID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatroomID))
	return h.Sum32() % appendStripes
}

// shouldAutoTitle reports whether the current title is a placeholder.
func (s *ChatroomService) shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// generateTitleFromPrompt derives a concise title from the prompt.
func (s *ChatroomService) generateTitleFromPrompt(prompt string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(strings.TrimSpace(prompt)), -1)
	if len(toks) == 0 {
		return ""
	}
	titleCaser := cases.Title(s.titleLocaleOrDefault())
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, " ")
}

// clipTitle truncates a title to the configured maximum rune length.
func (s *ChatroomService) clipTitle(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

// titleLocaleOrDefault returns the configured locale for casing or English
// if unset.
func (s *ChatroomService) titleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// titleWordRE extracts Unicode letters with optional trailing numbers.
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// titleStopWords is a minimal English stop-word set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
}
