// Package message generates and classifies chat message identifiers.
package message

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Prefixes used for fallback ids.
const (
	PrefixUser  = "user"
	PrefixModel = "model"
	PrefixError = "error"
)

// Generator produces message ids. Ids are UUIDv4 when the random source works and
// "<prefix>-<unixmilli>-<base36>" otherwise.
type Generator struct {
	mu     sync.Mutex
	reader io.Reader
	now    func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{reader: rand.Reader, now: time.Now}
}

// NewGeneratorFromReader is used in tests to force the fallback path.
func NewGeneratorFromReader(r io.Reader, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{reader: r, now: now}
}

func (g *Generator) New(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := uuid.NewRandomFromReader(g.reader)
	if err == nil {
		return id.String()
	}
	return fallbackID(prefix, g.now())
}

func fallbackID(prefix string, at time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<40))
	suffix := int64(0)
	if err == nil {
		suffix = n.Int64()
	} else {
		suffix = at.UnixNano() & (1<<40 - 1)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, at.UnixMilli(), strconv.FormatInt(suffix, 36))
}

// IsStoreID reports whether id has the canonical 8-4-4-4-12 UUID shape the store accepts.
func IsStoreID(id string) bool {
	if len(id) != 36 {
		return false
	}
	for i, c := range id {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHex(c) {
				return false
			}
		}
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// FilterStoreIDs keeps only store-shaped ids, preserving order.
func FilterStoreIDs(ids []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !IsStoreID(id) {
			continue
		}
		out = append(out, uuid.MustParse(id))
	}
	return out
}
