package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetList(t *testing.T) {
	t.Setenv("TEST_LIST", "dashboard.example.com, staging.example.com ,")
	assert.Equal(t, []string{"dashboard.example.com", "staging.example.com"}, getList("TEST_LIST"))

	t.Setenv("TEST_LIST", "")
	assert.Nil(t, getList("TEST_LIST"))
}
