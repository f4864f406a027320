package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasLimitClause(t *testing.T) {
	assert.True(t, hasLimitClause("SELECT * FROM chat_message LIMIT 10"))
	assert.True(t, hasLimitClause("select * from chat_message limit $limit"))
	assert.False(t, hasLimitClause("SELECT * FROM chat_message"))
	// A column or value containing "limit" as a substring must not count.
	assert.False(t, hasLimitClause("SELECT rateLimit FROM settings"))
}
