package users

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeforeCreate_AssignsID(t *testing.T) {
	u := &User{Username: "ada", Password: "hash"}

	require.NoError(t, u.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, u.ID)
}

func TestBeforeCreate_KeepsExistingID(t *testing.T) {
	id := uuid.New()
	u := &User{ID: id, Username: "ada", Password: "hash"}

	require.NoError(t, u.BeforeCreate(nil))
	assert.Equal(t, id, u.ID)
}

func TestMember(t *testing.T) {
	u := &User{ID: uuid.New(), Username: "ada", Password: "hash"}

	m := u.Member()
	assert.Equal(t, u.ID, m.UserID)
	assert.Equal(t, "ada", m.Username)
}
