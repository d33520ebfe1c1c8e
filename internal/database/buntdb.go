package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fellowship-chat/internal/models"

	"github.com/tidwall/buntdb"
)

// BuntDB is an embedded message store used for single-node deployments and
// as the test backend. Pass ":memory:" for an ephemeral store.
type BuntDB struct {
	db *buntdb.DB
}

const (
	messagePrefix   = "message:"
	watermarkPrefix = "watermark:"
	createdIndex    = "messages_created"
)

// storedMessage adds a numeric sort key so the created-at index orders
// correctly regardless of timestamp formatting.
type storedMessage struct {
	models.Message
	SortKey int64 `json:"sort_key"`
}

func NewBuntDB(path string) (*BuntDB, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex(createdIndex, messagePrefix+"*", buntdb.IndexJSON("sort_key"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BuntDB{db: db}, nil
}

func (b *BuntDB) Close() error {
	return b.db.Close()
}

func (b *BuntDB) SaveMessage(_ context.Context, msg *models.Message) error {
	encoded, err := json.Marshal(storedMessage{Message: *msg, SortKey: msg.CreatedAt.UnixNano()})
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(messagePrefix+msg.ID, string(encoded), nil)
		return err
	})
}

func (b *BuntDB) GetMessage(_ context.Context, id string) (*models.Message, error) {
	var msg *models.Message
	err := b.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(messagePrefix + id)
		if err != nil {
			return err
		}
		msg, err = decodeMessage(val)
		return err
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

func decodeMessage(val string) (*models.Message, error) {
	var stored storedMessage
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return nil, err
	}
	msg := stored.Message
	if msg.Reactions == nil {
		msg.Reactions = make(map[string]models.Reaction)
	}
	return &msg, nil
}

func (b *BuntDB) ListCommunityMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	return b.listMessages(limit, func(m *models.Message) bool {
		return m.RecipientID == "" && m.Scope != models.ScopeAdmin
	})
}

func (b *BuntDB) ListAdminMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	return b.listMessages(limit, func(m *models.Message) bool {
		return m.Scope == models.ScopeAdmin
	})
}

func (b *BuntDB) ListPrivateMessages(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	return b.listMessages(0, func(m *models.Message) bool {
		return (m.AuthorID == userA && m.RecipientID == userB) ||
			(m.AuthorID == userB && m.RecipientID == userA)
	})
}

func (b *BuntDB) listMessages(limit int, match func(*models.Message) bool) ([]*models.Message, error) {
	messages := make([]*models.Message, 0)
	var iterErr error
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(createdIndex, func(key, val string) bool {
			msg, err := decodeMessage(val)
			if err != nil {
				iterErr = err
				return false
			}
			if !match(msg) {
				return true
			}
			messages = append(messages, msg)
			return limit <= 0 || len(messages) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return messages, nil
}

func (b *BuntDB) MarkDelivered(ctx context.Context, id string, at time.Time) (*models.Message, error) {
	return b.updateMessage(id, func(m *models.Message) {
		m.Delivered = true
		if m.DeliveredAt == nil {
			t := at
			m.DeliveredAt = &t
		}
	})
}

func (b *BuntDB) MarkRead(ctx context.Context, id string, at time.Time) (*models.Message, error) {
	return b.updateMessage(id, func(m *models.Message) {
		m.Read = true
		if m.ReadAt == nil {
			t := at
			m.ReadAt = &t
		}
		m.Delivered = true
		if m.DeliveredAt == nil {
			t := at
			m.DeliveredAt = &t
		}
	})
}

func (b *BuntDB) UpdateReactions(ctx context.Context, id string, reactions map[string]models.Reaction) error {
	_, err := b.updateMessage(id, func(m *models.Message) {
		m.Reactions = reactions
	})
	return err
}

func (b *BuntDB) updateMessage(id string, mutate func(*models.Message)) (*models.Message, error) {
	var msg *models.Message
	err := b.db.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get(messagePrefix + id)
		if err != nil {
			return err
		}
		msg, err = decodeMessage(val)
		if err != nil {
			return err
		}
		mutate(msg)
		encoded, err := json.Marshal(storedMessage{Message: *msg, SortKey: msg.CreatedAt.UnixNano()})
		if err != nil {
			return err
		}
		_, _, err = tx.Set(messagePrefix+id, string(encoded), nil)
		return err
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (b *BuntDB) forEachMessage(fn func(*models.Message)) error {
	var iterErr error
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(createdIndex, func(key, val string) bool {
			msg, err := decodeMessage(val)
			if err != nil {
				iterErr = err
				return false
			}
			fn(msg)
			return true
		})
	})
	if err != nil {
		return err
	}
	return iterErr
}

func (b *BuntDB) CountUnreadPrivate(ctx context.Context, userID string) (map[string]int, error) {
	counts := make(map[string]int)
	err := b.forEachMessage(func(m *models.Message) {
		if m.RecipientID == userID && !m.Read {
			counts[m.AuthorID]++
		}
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (b *BuntDB) CountUnreadSince(ctx context.Context, scope models.ChatScope, userID string, since time.Time) (int, error) {
	count := 0
	err := b.forEachMessage(func(m *models.Message) {
		if m.Scope == scope && m.AuthorID != userID && !m.Read && !m.CreatedAt.Before(since) {
			count++
		}
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (b *BuntDB) GetWatermark(ctx context.Context, userID string, scope models.ChatScope) (time.Time, error) {
	var at time.Time
	err := b.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(watermarkPrefix + userID + ":" + string(scope))
		if err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			return err
		}
		at = parsed
		return nil
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return at, nil
}

func (b *BuntDB) SetWatermark(ctx context.Context, userID string, scope models.ChatScope, at time.Time) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(watermarkPrefix+userID+":"+string(scope), at.Format(time.RFC3339Nano), nil)
		return err
	})
}
