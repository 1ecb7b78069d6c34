package middleware

import (
	"context"

	"github.com/hitoshi/csaccess/internal/model"
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// SessionRevocationChecker はセッションレコードのrevoked_atを参照するRevocationChecker。
type SessionRevocationChecker struct {
	sessions SessionFinder
}

// NewSessionRevocationChecker はSessionRevocationCheckerを生成する。
func NewSessionRevocationChecker(sessions SessionFinder) *SessionRevocationChecker {
	return &SessionRevocationChecker{sessions: sessions}
}

// IsRevoked はセッションが失効済みかどうかを返す。
// レコードが存在しない場合はトークンを無効にしない。
func (c *SessionRevocationChecker) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	session, err := c.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}
	return session.Revoked(), nil
}
