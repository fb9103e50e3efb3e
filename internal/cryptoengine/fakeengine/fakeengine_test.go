package fakeengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine/fakeengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := fakeengine.New()
	groupID := model.MlsGroupId("group-1")

	require.NoError(t, e.CreateConversation(ctx, groupID, nil))

	ciphertext, err := e.EncryptMls(ctx, groupID, []byte("hello"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("hello"), ciphertext)

	plaintext, err := e.DecryptMls(ctx, groupID, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plaintext))
}

func TestProcessWelcomeOrphan(t *testing.T) {
	ctx := context.Background()
	e := fakeengine.New()
	e.ForceOrphanWelcome = true

	_, outcome, err := e.ProcessWelcome(ctx, []byte("welcome-bytes"))
	require.NoError(t, err)
	assert.Equal(t, cryptoengine.WelcomeOrphan, outcome)
}

func TestHasTooFewKeyPackages(t *testing.T) {
	ctx := context.Background()
	e := fakeengine.New()

	tooFew, err := e.HasTooFewKeyPackages(ctx, 100)
	require.NoError(t, err)
	assert.True(t, tooFew)

	e.SetKeyPackageCount(60)
	tooFew, err = e.HasTooFewKeyPackages(ctx, 100)
	require.NoError(t, err)
	assert.False(t, tooFew)
}

func TestWipeConversation(t *testing.T) {
	ctx := context.Background()
	e := fakeengine.New()
	groupID := model.MlsGroupId("group-wipe")

	require.NoError(t, e.CreateConversation(ctx, groupID, nil))
	exists, err := e.ConversationExists(ctx, groupID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, e.WipeConversation(ctx, groupID))
	exists, err = e.ConversationExists(ctx, groupID)
	require.NoError(t, err)
	assert.False(t, exists)
}
