package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingotutor/cache"
	applog "lingotutor/logger"
	"lingotutor/models"
	"lingotutor/storage"
)

func TestCreateThreadUsesPlaceholderName(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	thread, err := env.threads.Create(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultThreadName, thread.Name)
	assert.Equal(t, userID, thread.UserID)
}

func TestRenameThreadShowsInList(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := uuid.New()

	for _, name := range []string{"Travel phrases", "Job interview", "  Past tense  "} {
		thread, err := env.threads.Create(ctx, userID)
		require.NoError(t, err)

		_, err = env.threads.Rename(ctx, userID, thread.ID, name)
		require.NoError(t, err)

		threads, err := env.threads.List(ctx, userID)
		require.NoError(t, err)
		found := false
		for _, th := range threads {
			if th.ID == thread.ID {
				found = true
				assert.Equal(t, strings.TrimSpace(name), th.Name)
			}
		}
		assert.True(t, found)
	}
}

func TestRenameThreadTrimsName(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := uuid.New()
	thread, err := env.threads.Create(ctx, userID)
	require.NoError(t, err)

	renamed, err := env.threads.Rename(ctx, userID, thread.ID, "  Past tense  ")
	require.NoError(t, err)
	assert.Equal(t, "Past tense", renamed.Name)

	threads, err := env.threads.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "Past tense", threads[0].Name)
}

func TestRenameThreadRejectsBlankNames(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := uuid.New()
	thread, err := env.threads.Create(ctx, userID)
	require.NoError(t, err)
	_, err = env.threads.Rename(ctx, userID, thread.ID, "Greetings")
	require.NoError(t, err)

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := env.threads.Rename(ctx, userID, thread.ID, name)
		assert.ErrorIs(t, err, ErrEmptyName)
	}

	stored, err := env.threads.Get(ctx, userID, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, "Greetings", stored.Name)
}

func TestRenameThreadIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := uuid.New()
	thread, err := env.threads.Create(ctx, owner)
	require.NoError(t, err)

	_, err = env.threads.Rename(ctx, uuid.New(), thread.ID, "Mine now")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.threads.Delete(ctx, uuid.New(), thread.ID), ErrNotFound)
}

func TestListThreadsMostRecentlyUpdatedFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := uuid.New()

	first, err := env.threads.Create(ctx, userID)
	require.NoError(t, err)
	second, err := env.threads.Create(ctx, userID)
	require.NoError(t, err)
	_, err = env.threads.Create(ctx, uuid.New())
	require.NoError(t, err)

	threads, err := env.threads.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, second.ID, threads[0].ID)

	_, err = env.messages.Append(ctx, userID, first.ID, "bump", true, nil)
	require.NoError(t, err)

	threads, err = env.threads.List(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, threads[0].ID)
}

func TestThreadMutationsInvalidateList(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rec := recordInvalidations(env.store)
	userID := uuid.New()

	thread, err := env.threads.Create(ctx, userID)
	require.NoError(t, err)
	_, err = env.threads.Rename(ctx, userID, thread.ID, "Renamed")
	require.NoError(t, err)
	require.NoError(t, env.threads.Delete(ctx, userID, thread.ID))

	count := 0
	for _, k := range rec.Keys() {
		if k == cache.ThreadsKey(userID) {
			count++
		}
	}
	assert.Equal(t, 3, count)
	assert.Contains(t, rec.Keys(), cache.MessagesKey(userID, thread.ID))
}

func TestDeleteThreadCascadesMessages(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := uuid.New()
	thread, err := env.threads.Create(ctx, userID)
	require.NoError(t, err)
	for _, text := range []string{"one", "two", "three"} {
		_, err := env.messages.Append(ctx, userID, thread.ID, text, true, nil)
		require.NoError(t, err)
	}

	require.NoError(t, env.threads.Delete(ctx, userID, thread.ID))

	var remaining int64
	require.NoError(t, env.db.Model(&models.ChatMessage{}).Where("thread_id = ?", thread.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	_, err = env.messages.List(ctx, userID, thread.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	threads, err := env.threads.List(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestDeleteThreadRemovesStoredAudio(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := activeSession()
	userID := sess.UserID
	thread, err := env.threads.Create(ctx, userID)
	require.NoError(t, err)
	other, err := env.threads.Create(ctx, userID)
	require.NoError(t, err)

	chat := NewChatService(env.threads, env.messages, &fakeReplier{reply: "Listen"}, &fakeSpeech{audio: []byte("mp3")}, env.blobs, applog.Nop())
	for _, id := range []uuid.UUID{thread.ID, other.ID} {
		threadID := id
		_, err := chat.Send(ctx, sess, SendRequest{ThreadID: &threadID, Message: "Hi", Speak: true})
		require.NoError(t, err)
	}
	require.Len(t, env.blobs.Keys(), 2)

	require.NoError(t, env.threads.Delete(ctx, userID, thread.ID))

	keys := env.blobs.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], storage.AudioPrefix(other.ID)))
}

func TestDeleteThreadWithoutBlobStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	threads := NewThreadService(env.db, env.store, nil, applog.Nop())
	userID := uuid.New()
	thread, err := threads.Create(ctx, userID)
	require.NoError(t, err)

	assert.NoError(t, threads.Delete(ctx, userID, thread.ID))
}
