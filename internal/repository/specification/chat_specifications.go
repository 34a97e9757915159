package specification

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BySessionID struct {
	SessionID uuid.UUID
}

func (s BySessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

// ByScope restricts sessions to one app and client.
type ByScope struct {
	AppID    string
	ClientID string
}

func (s ByScope) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("app_id = ? AND client_id = ?", s.AppID, s.ClientID)
}

// TitleContains is a case-insensitive substring match. LOWER keeps it portable to sqlite.
type TitleContains struct {
	Query string
}

func (s TitleContains) Apply(db *gorm.DB) *gorm.DB {
	pattern := "%" + strings.ToLower(s.Query) + "%"
	return db.Where("LOWER(title) LIKE ?", pattern)
}
