package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/storefront/models"
	"goflare.io/storefront/models/enum"
)

// DefaultSessionSubject matches every session event published by the auth layer.
const DefaultSessionSubject = "storefront.session.>"

type EventHandler func(context.Context, *models.SessionEvent) error

type EventManager struct {
	natsConn *nats.Conn
	subject  string
	logger   *zap.Logger

	mu           sync.RWMutex
	handlers     map[enum.SessionEventType]EventHandler
	subscription *nats.Subscription
}

func NewEventManager(natsConn *nats.Conn, subject string, logger *zap.Logger) *EventManager {
	if subject == "" {
		subject = DefaultSessionSubject
	}
	return &EventManager{
		natsConn: natsConn,
		subject:  subject,
		handlers: make(map[enum.SessionEventType]EventHandler),
		logger:   logger,
	}
}

func (em *EventManager) RegisterHandler(eventType enum.SessionEventType, handler EventHandler) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.handlers[eventType] = handler
}

func (em *EventManager) GetHandler(eventType enum.SessionEventType) (EventHandler, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()
	handler, exists := em.handlers[eventType]
	return handler, exists
}

// SubscribeToEvents hands every decoded session event to wp.
func (em *EventManager) SubscribeToEvents(wp *WorkerPool) error {
	if em.natsConn == nil {
		return fmt.Errorf("failed to subscribe to %s: no nats connection", em.subject)
	}

	sub, err := em.natsConn.Subscribe(em.subject, em.messageHandler(wp))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", em.subject, err)
	}

	em.mu.Lock()
	em.subscription = sub
	em.mu.Unlock()

	em.logger.Info("Subscribed to session events", zap.String("subject", em.subject))
	return nil
}

// Unsubscribe drains the subscription so in-flight messages still reach the pool.
func (em *EventManager) Unsubscribe() error {
	em.mu.Lock()
	sub := em.subscription
	em.subscription = nil
	em.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Drain()
}

func (em *EventManager) messageHandler(wp *WorkerPool) nats.MsgHandler {
	return func(msg *nats.Msg) {
		event, err := DecodeSessionEvent(msg.Data)
		if err != nil {
			em.logger.Error("Failed to unmarshal event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}

		if err := wp.Submit(context.Background(), event); err != nil {
			em.logger.Warn("Dropped session event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
}

// DecodeSessionEvent parses a session event and checks the fields every handler needs.
func DecodeSessionEvent(data []byte) (*models.SessionEvent, error) {
	var event models.SessionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode session event: %w", err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("session event without id")
	}
	switch event.Type {
	case enum.SessionEventLogin:
		if event.UserID == "" {
			return nil, fmt.Errorf("login event %s without user id", event.ID)
		}
	case enum.SessionEventLogout:
	default:
		return nil, fmt.Errorf("unknown session event type %q", event.Type)
	}
	return &event, nil
}

func (s *service) registerEventHandlers() {
	eventHandlers := map[enum.SessionEventType]EventHandler{
		enum.SessionEventLogin:  s.handleLogin,
		enum.SessionEventLogout: s.handleLogout,
	}

	for eventType, handler := range eventHandlers {
		s.eventManager.RegisterHandler(eventType, handler)
	}
}

func (s *service) handleLogin(ctx context.Context, event *models.SessionEvent) error {
	s.logger.Info("Handling login event", zap.String("event_id", event.ID), zap.String("user_id", event.UserID))

	_, err := s.Login(ctx, event.UserID, event.Token)
	return err
}

func (s *service) handleLogout(ctx context.Context, event *models.SessionEvent) error {
	s.logger.Info("Handling logout event", zap.String("event_id", event.ID))

	return s.Logout(ctx)
}

func (s *service) ProcessEvent(ctx context.Context, event *models.SessionEvent) error {
	handler, exists := s.eventManager.GetHandler(event.Type)
	if !exists {
		return fmt.Errorf("no handler registered for event type: %s", event.Type)
	}

	first, err := s.event.MarkAsProcessed(ctx, event.ID)
	if err != nil {
		s.logger.Error("Failed to record event", zap.String("event_id", event.ID), zap.Error(err))
		return err
	}
	if !first {
		s.logger.Info("Event already processed", zap.String("event_id", event.ID))
		return nil
	}

	if err := handler(ctx, event); err != nil {
		s.logger.Error("處理事件時出錯",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		// 釋放事件 ID，重送時可再次處理
		if ferr := s.event.Forget(ctx, event.ID); ferr != nil {
			s.logger.Warn("Failed event stays marked as processed", zap.String("event_id", event.ID), zap.Error(ferr))
		}
		return err
	}

	s.logger.Info("Session event processed", zap.String("event_id", event.ID))

	return nil
}
