package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	Id        uuid.UUID
	AppId     string
	ClientId  string
	Title     string
	CreatedAt time.Time
}
