package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingotutor/ai"
	applog "lingotutor/logger"
)

func TestSendStoresUserAndAssistantMessages(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := activeSession()
	replier := &fakeReplier{reply: "Hi there!"}
	chat := NewChatService(env.threads, env.messages, replier, nil, nil, applog.Nop())

	thread, err := env.threads.Create(ctx, sess.UserID)
	require.NoError(t, err)

	res, err := chat.Send(ctx, sess, SendRequest{ThreadID: &thread.ID, Message: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, thread.ID, res.Thread.ID)
	assert.Equal(t, []string{"Hello"}, replier.prompts)

	messages, err := env.messages.List(ctx, sess.UserID, thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.True(t, messages[0].IsUser)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.False(t, messages[1].IsUser)
	assert.Equal(t, "Hi there!", messages[1].Content)
}

func TestSendWithoutThreadCreatesOne(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := activeSession()
	chat := NewChatService(env.threads, env.messages, &fakeReplier{reply: "ok"}, nil, nil, applog.Nop())

	res, err := chat.Send(ctx, sess, SendRequest{Message: "First words"})
	require.NoError(t, err)
	require.NotNil(t, res.Thread)

	threads, err := env.threads.List(ctx, sess.UserID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, res.Thread.ID, threads[0].ID)
}

func TestSendCompletionFailureKeepsUserMessage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := activeSession()
	upstream := &ai.ProviderError{Provider: "openai", Status: 503}
	chat := NewChatService(env.threads, env.messages, &fakeReplier{err: upstream}, nil, nil, applog.Nop())

	res, err := chat.Send(ctx, sess, SendRequest{Message: "Hello"})
	require.Error(t, err)
	var pe *ai.ProviderError
	assert.True(t, errors.As(err, &pe))
	require.NotNil(t, res)
	assert.Nil(t, res.AssistantMessage)

	messages, err := env.messages.List(ctx, sess.UserID, res.Thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Hello", messages[0].Content)
}

func TestSendRejectsBlankMessageAndSignedOutSession(t *testing.T) {
	env := newTestEnv(t)
	chat := NewChatService(env.threads, env.messages, &fakeReplier{reply: "x"}, nil, nil, applog.Nop())

	_, err := chat.Send(context.Background(), activeSession(), SendRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	sess := activeSession()
	sess.State = SignedOut
	_, err = chat.Send(context.Background(), sess, SendRequest{Message: "Hello"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSendRejectsConcurrentSendOnSameThread(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := activeSession()
	replier := &fakeReplier{reply: "slow", gate: make(chan struct{})}
	chat := NewChatService(env.threads, env.messages, replier, nil, nil, applog.Nop())
	thread, err := env.threads.Create(ctx, sess.UserID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := chat.Send(ctx, sess, SendRequest{ThreadID: &thread.ID, Message: "one"})
		done <- err
	}()

	require.Eventually(t, func() bool {
		msgs, err := env.messages.List(ctx, sess.UserID, thread.ID)
		return err == nil && len(msgs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, err = chat.Send(ctx, sess, SendRequest{ThreadID: &thread.ID, Message: "two"})
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(replier.gate)
	require.NoError(t, <-done)

	_, err = chat.Send(ctx, sess, SendRequest{ThreadID: &thread.ID, Message: "three"})
	assert.NoError(t, err)
}

func TestSendWithSpeakStoresAudio(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := activeSession()
	blobs := newFakeBlobs()
	speech := &fakeSpeech{audio: []byte("mp3")}
	chat := NewChatService(env.threads, env.messages, &fakeReplier{reply: "Listen"}, speech, blobs, applog.Nop())

	res, err := chat.Send(ctx, sess, SendRequest{Message: "Say something", Speak: true})
	require.NoError(t, err)
	require.NotNil(t, res.AssistantMessage.AudioURL)
	assert.Contains(t, *res.AssistantMessage.AudioURL, "https://blobs.test/audio/"+res.Thread.ID.String())
	require.Len(t, blobs.objects, 1)
	for key, data := range blobs.objects {
		assert.Equal(t, []byte("mp3"), data)
		assert.Equal(t, "audio/mpeg", blobs.types[key])
	}
}

func TestSendSpeechFailureStillStoresReply(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := activeSession()
	speech := &fakeSpeech{err: errors.New("tts down")}
	chat := NewChatService(env.threads, env.messages, &fakeReplier{reply: "Quiet"}, speech, newFakeBlobs(), applog.Nop())

	res, err := chat.Send(ctx, sess, SendRequest{Message: "Hi", Speak: true})
	require.NoError(t, err)
	assert.Nil(t, res.AssistantMessage.AudioURL)
	assert.Equal(t, "Quiet", res.AssistantMessage.Content)
}

func TestSendUnknownThread(t *testing.T) {
	env := newTestEnv(t)
	chat := NewChatService(env.threads, env.messages, &fakeReplier{reply: "x"}, nil, nil, applog.Nop())
	missing := uuid.New()

	_, err := chat.Send(context.Background(), activeSession(), SendRequest{ThreadID: &missing, Message: "Hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}
