package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaSQL_MatchesModels(t *testing.T) {
	ddl := SchemaSQL()

	assert.True(t, strings.HasPrefix(ddl, SetupSQL[0]))
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS "+ChatSession{}.TableName())
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS "+ChatMessage{}.TableName())
	assert.Contains(t, ddl, "ON DELETE CASCADE")
	assert.Contains(t, ddl, "CHECK (role IN ('user','model'))")
}
