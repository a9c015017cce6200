package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-relay/internal/auth"
	"chat-relay/internal/database"
	"chat-relay/internal/models"
)

// DisplayTimeLayout renders chat times as "03:04 pm".
const DisplayTimeLayout = "03:04 pm"

// Store is the part of the message store the protocol writes to.
type Store interface {
	database.GroupRepository
	database.MessageRepository
}

// Publisher is satisfied by *Router.
type Publisher interface {
	Publish(group string, event models.OutboundEvent) error
}

// Dispatcher maps each inbound event of an Active session to at most one
// store mutation and one published event.
type Dispatcher struct {
	store     Store
	publisher Publisher
	loc       *time.Location
	now       func() time.Time
	log       *slog.Logger

	// Groups are never deleted, so a resolved id stays valid.
	groupIDs sync.Map // group name -> int64
}

func NewDispatcher(store Store, publisher Publisher, loc *time.Location, log *slog.Logger) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
		log:       log,
	}
}

// Handle decodes one frame sent by identity in group and applies it.
// Unauthorized or unknown deletes are ignored without error.
func (d *Dispatcher) Handle(ctx context.Context, group string, identity auth.Identity, frame []byte) error {
	evt, err := models.DecodeInbound(frame)
	if err != nil {
		return err
	}

	switch e := evt.(type) {
	case *models.TypingRequest:
		return d.typing(group, identity, e)
	case *models.DeleteRequest:
		return d.delete(ctx, group, identity, e)
	case *models.PostRequest:
		return d.post(ctx, group, identity, e)
	default:
		return fmt.Errorf("%w: unsupported event %T", models.ErrMalformedEvent, evt)
	}
}

func (d *Dispatcher) typing(group string, identity auth.Identity, req *models.TypingRequest) error {
	return d.publisher.Publish(group, models.TypingEvent{
		User:   identity.DisplayName(),
		Typing: *req.Typing,
	})
}

func (d *Dispatcher) delete(ctx context.Context, group string, identity auth.Identity, req *models.DeleteRequest) error {
	if !identity.IsAuthenticated() {
		d.log.Debug("ignoring delete from anonymous session", "group", group, "message_id", *req.MessageID)
		return nil
	}

	deleted, err := d.store.DeleteMessage(ctx, identity.UserID, *req.MessageID)
	if err != nil {
		return err
	}
	if !deleted {
		d.log.Debug("ignoring delete of missing or foreign message",
			"group", group, "user_id", identity.UserID, "message_id", *req.MessageID)
		return nil
	}

	return d.publisher.Publish(group, models.DeleteEvent{MessageID: *req.MessageID})
}

func (d *Dispatcher) post(ctx context.Context, group string, identity auth.Identity, req *models.PostRequest) error {
	var messageID *int64
	if identity.IsAuthenticated() {
		groupID, err := d.resolveGroup(ctx, group)
		if err != nil {
			return err
		}
		msg, err := d.store.CreateMessage(ctx, identity.Author(), groupID, *req.Message)
		if err != nil {
			return err
		}
		messageID = &msg.ID
	}

	return d.publisher.Publish(group, models.ChatEvent{
		Message:   *req.Message,
		User:      identity.DisplayName(),
		Time:      d.now().In(d.loc).Format(DisplayTimeLayout),
		MessageID: messageID,
	})
}

func (d *Dispatcher) resolveGroup(ctx context.Context, name string) (int64, error) {
	if id, ok := d.groupIDs.Load(name); ok {
		return id.(int64), nil
	}

	group, err := d.store.GetOrCreateGroup(ctx, name)
	if err != nil {
		return 0, err
	}
	d.groupIDs.Store(name, group.ID)
	return group.ID, nil
}
