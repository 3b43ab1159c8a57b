package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/authbridge/internal/cryptox"
	"github.com/dmitrijs2005/authbridge/internal/dbx"
	"github.com/dmitrijs2005/authbridge/internal/provider"
)

const (
	keySession   = "session"
	keyUserID    = "user_id"
	keyPinSecret = "pin_secret"
)

// Store gives the metadata table typed accessors. Absent values come back
// as nil or "" with a nil error.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) repo(db dbx.DBTX) *MetadataRepository {
	return NewMetadataRepository(db)
}

func (s *Store) LoadSession(ctx context.Context) (*provider.Session, error) {
	b, err := s.repo(s.db).Get(ctx, keySession)
	if err != nil || b == nil {
		return nil, err
	}
	var sess provider.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// SaveSession stores sess and remembers its user id, in one transaction.
func (s *Store) SaveSession(ctx context.Context, sess *provider.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := s.repo(tx)
		if err := r.Set(ctx, keySession, b); err != nil {
			return err
		}
		if sess.UserID != "" {
			return r.Set(ctx, keyUserID, []byte(sess.UserID))
		}
		return nil
	})
}

// ClearSession drops the session but keeps the user id and PIN secret, so
// the user can unlock again later.
func (s *Store) ClearSession(ctx context.Context) error {
	return s.repo(s.db).Delete(ctx, keySession)
}

func (s *Store) UserID(ctx context.Context) (string, error) {
	b, err := s.repo(s.db).Get(ctx, keyUserID)
	return string(b), err
}

func (s *Store) LoadPinSecret(ctx context.Context) (*cryptox.LocalPinSecret, error) {
	b, err := s.repo(s.db).Get(ctx, keyPinSecret)
	if err != nil || b == nil {
		return nil, err
	}
	var sec cryptox.LocalPinSecret
	if err := json.Unmarshal(b, &sec); err != nil {
		return nil, fmt.Errorf("decode pin secret: %w", err)
	}
	return &sec, nil
}

func (s *Store) SavePinSecret(ctx context.Context, sec *cryptox.LocalPinSecret) error {
	b, err := json.Marshal(sec)
	if err != nil {
		return fmt.Errorf("encode pin secret: %w", err)
	}
	return s.repo(s.db).Set(ctx, keyPinSecret, b)
}

// Forget wipes everything, user id and PIN secret included.
func (s *Store) Forget(ctx context.Context) error {
	return s.repo(s.db).Clear(ctx)
}
