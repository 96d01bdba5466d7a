package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseWithoutConnections(t *testing.T) {
	assert.NoError(t, ClosePostgres())
	assert.NoError(t, CloseRedis())
}
