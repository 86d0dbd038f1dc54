package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/merchantbook/ledger-service/internal/ledger"
	"github.com/merchantbook/ledger-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned when an optimistic balance update loses a
// race; the caller may retry the whole customer-scoped operation.
var ErrVersionConflict = errors.New("balance version conflict")

// RepositoryInterface is the persistence boundary of the ledger: the journal,
// the stored balance pair, the credit audit trail, the outbox, and the
// balance cache. Narrow on purpose so service tests can mock it.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	GetBalanceForUpdate(ctx context.Context, tx *gorm.DB, customerID uint64) (*model.CustomerBalance, error)
	CreateBalance(ctx context.Context, tx *gorm.DB, b *model.CustomerBalance) error
	UpdateBalance(ctx context.Context, tx *gorm.DB, customerID uint64, bal ledger.Balances, oldVersion uint64) error

	GetTransaction(ctx context.Context, tx *gorm.DB, id string) (*model.Transaction, error)
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	LoadTransactions(ctx context.Context, tx *gorm.DB, customerID uint64) ([]model.Transaction, error)
	ListCustomerIDs(ctx context.Context, offset, limit int) ([]uint64, error)

	AppendAuditEntry(ctx context.Context, tx *gorm.DB, e *model.CreditAuditEntry) error
	ListAuditEntries(ctx context.Context, customerID uint64) ([]model.CreditAuditEntry, error)

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, customerID uint64, bal ledger.Balances) error
	GetCachedBalance(ctx context.Context, customerID uint64) (ledger.Balances, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// GetBalanceForUpdate locks the customer's balance row. This is the
// per-customer serialization point shared by the write path and the
// reconciler.
func (r *Repository) GetBalanceForUpdate(ctx context.Context, tx *gorm.DB, customerID uint64) (*model.CustomerBalance, error) {
	var b model.CustomerBalance
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ?", customerID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBalance inserts a zeroed balance row for a new customer.
func (r *Repository) CreateBalance(ctx context.Context, tx *gorm.DB, b *model.CustomerBalance) error {
	return tx.WithContext(ctx).Create(b).Error
}

// UpdateBalance writes the pair with an optimistic version check.
func (r *Repository) UpdateBalance(ctx context.Context, tx *gorm.DB, customerID uint64, bal ledger.Balances, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.CustomerBalance{}).
		Where("customer_id = ? AND version = ?", customerID, oldVersion).
		Updates(map[string]interface{}{
			"outstanding": bal.Outstanding,
			"credit":      bal.Credit,
			"version":     oldVersion + 1,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// GetTransaction fetches one journal row by id (idempotent replays).
func (r *Repository) GetTransaction(ctx context.Context, tx *gorm.DB, id string) (*model.Transaction, error) {
	var t model.Transaction
	err := tx.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction appends to the journal. The journal has no update or
// delete path.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// LoadTransactions returns the customer's full journal ordered for replay:
// date ascending, id as tie-break.
func (r *Repository) LoadTransactions(ctx context.Context, tx *gorm.DB, customerID uint64) ([]model.Transaction, error) {
	if tx == nil {
		tx = r.db
	}
	var txs []model.Transaction
	err := tx.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("date asc, id asc").
		Find(&txs).Error
	return txs, err
}

// ListCustomerIDs pages over customers that have a balance row.
func (r *Repository) ListCustomerIDs(ctx context.Context, offset, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&model.CustomerBalance{}).
		Order("customer_id asc").
		Offset(offset).Limit(limit).
		Pluck("customer_id", &ids).Error
	return ids, err
}

// AppendAuditEntry writes one immutable credit audit entry.
func (r *Repository) AppendAuditEntry(ctx context.Context, tx *gorm.DB, e *model.CreditAuditEntry) error {
	return tx.WithContext(ctx).Create(e).Error
}

// ListAuditEntries returns a customer's audit trail, oldest first.
func (r *Repository) ListAuditEntries(ctx context.Context, customerID uint64) ([]model.CreditAuditEntry, error) {
	var entries []model.CreditAuditEntry
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at asc, id asc").
		Find(&entries).Error
	return entries, err
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

type cachedBalance struct {
	Outstanding int64 `json:"outstanding"`
	Credit      int64 `json:"credit"`
}

// CacheBalance writes the pair to Redis with a short TTL.
func (r *Repository) CacheBalance(ctx context.Context, customerID uint64, bal ledger.Balances) error {
	payload, err := json.Marshal(cachedBalance{Outstanding: bal.Outstanding, Credit: bal.Credit})
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, fmt.Sprintf("balance:%d", customerID), string(payload), 5*time.Minute).Err()
}

// GetCachedBalance reads the pair from Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, customerID uint64) (ledger.Balances, error) {
	str, err := r.rdb.Get(ctx, fmt.Sprintf("balance:%d", customerID)).Result()
	if err != nil {
		return ledger.Balances{}, err
	}
	var c cachedBalance
	if err := json.Unmarshal([]byte(str), &c); err != nil {
		return ledger.Balances{}, err
	}
	return ledger.Balances{Outstanding: c.Outstanding, Credit: c.Credit}, nil
}
