package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"funnel_backend/internals/features/funnel/sessions/model"
)

var ErrNotFound = errors.New("session: not found")

// Store persists funnel sessions. Save is the single write path for an
// existing session.
type Store interface {
	Create(ctx context.Context, s *model.State) error
	Get(ctx context.Context, id uuid.UUID) (*model.State, error)
	Save(ctx context.Context, s *model.State) error
}

/* ===================== Postgres ===================== */

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (g *GormStore) Create(ctx context.Context, s *model.State) error {
	row, err := model.ToRow(s)
	if err != nil {
		return err
	}
	return g.DB.WithContext(ctx).Create(row).Error
}

func (g *GormStore) Get(ctx context.Context, id uuid.UUID) (*model.State, error) {
	var row model.SessionModel
	err := g.DB.WithContext(ctx).
		Where("session_id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	return model.FromRow(&row)
}

func (g *GormStore) Save(ctx context.Context, s *model.State) error {
	s.UpdatedAt = time.Now()
	row, err := model.ToRow(s)
	if err != nil {
		return err
	}
	return g.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"session_version", "session_step", "session_completed", "session_state", "session_flags", "session_updated_at"}),
		}).
		Create(row).Error
}

/* ===================== Memory ===================== */

// MemoryStore keeps encoded states in a map. It goes through the same codec
// as the database store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[uuid.UUID][]byte{}}
}

func (m *MemoryStore) Create(_ context.Context, s *model.State) error {
	raw, err := model.Encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.ID]; ok {
		return fmt.Errorf("session: %s already exists", s.ID)
	}
	m.rows[s.ID] = raw
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*model.State, error) {
	m.mu.RLock()
	raw, ok := m.rows[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return model.Decode(raw)
}

func (m *MemoryStore) Save(_ context.Context, s *model.State) error {
	s.UpdatedAt = time.Now()
	raw, err := model.Encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.rows[s.ID] = raw
	m.mu.Unlock()
	return nil
}
