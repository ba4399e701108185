package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mcoot/sailsync/internal/dependencies/clock"
	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/storage"
)

// DefaultHistoryLimit is the number of messages returned when no limit is given
const DefaultHistoryLimit = 50

// Profiles resolves sender details for display
type Profiles interface {
	Lookup(ctx context.Context, id model.PlayerID) (*model.Player, error)
}

// Service appends chat messages and reads them back with sender details.
// Name and color are attached at read time and never stored.
type Service struct {
	store    storage.Store
	ordered  storage.OrderedStore
	profiles Profiles
	clock    clock.Clock
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a chat service
func New(store storage.Store, profiles Profiles, clk clock.Clock, timeout time.Duration, logger *slog.Logger) *Service {
	s := &Service{
		store:    store,
		profiles: profiles,
		clock:    clk,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "chat")),
	}
	if ordered, ok := store.(storage.OrderedStore); ok {
		s.ordered = ordered
	}
	return s
}

// Send validates and stores a message. An empty messageType means global.
func (s *Service) Send(ctx context.Context, sender model.PlayerID, content, messageType string) (*model.ChatMessage, error) {
	content, err := model.NormalizeMessage(content)
	if err != nil {
		return nil, err
	}
	if messageType == "" {
		messageType = model.MessageTypeGlobal
	}

	msg := &model.Message{
		SenderID:    sender,
		Content:     content,
		Timestamp:   s.clock.Now(),
		MessageType: messageType,
	}

	sctx, cancel := s.context(ctx)
	defer cancel()
	if err := s.store.AppendMessage(sctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrPersistFailed, err)
	}
	return s.decorate(ctx, msg), nil
}

// Recent returns up to limit messages of the type in chronological order
func (s *Service) Recent(ctx context.Context, messageType string, limit int) ([]*model.ChatMessage, error) {
	if messageType == "" {
		messageType = model.MessageTypeGlobal
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	sctx, cancel := s.context(ctx)
	defer cancel()

	var messages []*model.Message
	var err error
	if s.ordered != nil {
		messages, err = s.ordered.RecentMessages(sctx, messageType, limit)
	} else {
		messages, err = s.latest(sctx, messageType, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}

	// Newest first from either path; callers want oldest first
	result := make([]*model.ChatMessage, len(messages))
	for i, m := range messages {
		result[len(messages)-1-i] = s.decorate(ctx, m)
	}
	return result, nil
}

// latest lists every message of the type and keeps the newest limit
func (s *Service) latest(ctx context.Context, messageType string, limit int) ([]*model.Message, error) {
	messages, err := s.store.ListMessages(ctx, messageType)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.After(messages[j].Timestamp)
	})
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (s *Service) decorate(ctx context.Context, msg *model.Message) *model.ChatMessage {
	out := &model.ChatMessage{
		Message:     *msg,
		SenderName:  model.UnknownSenderName,
		SenderColor: model.UnknownSenderColor,
	}
	sender, err := s.profiles.Lookup(ctx, msg.SenderID)
	if err != nil {
		return out
	}
	out.SenderName = sender.Name
	out.SenderColor = sender.Color
	return out
}

func (s *Service) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
