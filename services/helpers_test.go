package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lingotutor/ai"
	"lingotutor/cache"
	applog "lingotutor/logger"
	"lingotutor/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ChatThread{},
		&models.ChatMessage{},
		&models.Quiz{},
		&models.Question{},
	))
	return db
}

// testClock hands out strictly increasing times one second apart.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fakeReplier struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	gate    chan struct{}
}

func (f *fakeReplier) Reply(ctx context.Context, message string) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, message)
	return f.reply, f.err
}

type fakeGenerator struct {
	questions []ai.GeneratedQuestion
	err       error
	topic     string
	count     int
}

func (f *fakeGenerator) GenerateQuestions(ctx context.Context, topic string, count int) ([]ai.GeneratedQuestion, error) {
	f.topic, f.count = topic, count
	return f.questions, f.err
}

type fakeImages struct {
	mu      sync.Mutex
	url     string
	err     error
	calls   int
	prompts []string
	gate    chan struct{}
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.url, f.err
}

func (f *fakeImages) Download(ctx context.Context, url string) ([]byte, string, error) {
	return []byte("webp-bytes"), "image/webp", nil
}

func (f *fakeImages) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSpeech struct {
	audio []byte
	text  string
	err   error
	got   []byte
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.audio, f.err
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audio []byte) (string, error) {
	f.got = audio
	return f.text, f.err
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobs) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	return "https://blobs.test/" + key, nil
}

func (f *fakeBlobs) DeletePrefix(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
			delete(f.types, key)
		}
	}
	return nil
}

func (f *fakeBlobs) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	return keys
}

type fakeAssistant struct {
	topic string
	turns []ai.Turn
	text  string
	lang  string
	out   string
	err   error
}

func (f *fakeAssistant) Suggest(ctx context.Context, topic string, history []ai.Turn) (string, error) {
	f.topic, f.turns = topic, history
	return f.out, f.err
}

func (f *fakeAssistant) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	f.text, f.lang = text, targetLanguage
	return f.out, f.err
}

// keyRecorder collects every invalidated key.
type keyRecorder struct {
	mu   sync.Mutex
	keys []string
}

func recordInvalidations(store cache.Store) *keyRecorder {
	r := &keyRecorder{}
	store.Subscribe("*", func(key string) {
		r.mu.Lock()
		r.keys = append(r.keys, key)
		r.mu.Unlock()
	})
	return r
}

func (r *keyRecorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

// failingStore fails every read.
type failingStore struct {
	cache.Store
	err error
}

func (f *failingStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	return false, f.err
}

// interleavedStore runs beforeSet once, just before the first conditional
// store, to model a write landing between a load's read and its Set.
type interleavedStore struct {
	cache.Store
	once      sync.Once
	beforeSet func()
}

func (s *interleavedStore) SetIfGeneration(ctx context.Context, key string, value any, ttl time.Duration, gen int64) (bool, error) {
	s.once.Do(s.beforeSet)
	return s.Store.SetIfGeneration(ctx, key, value, ttl, gen)
}

type testEnv struct {
	db       *gorm.DB
	store    *cache.MemoryStore
	clock    *testClock
	blobs    *fakeBlobs
	threads  *ThreadService
	messages *MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	store := cache.NewMemoryStore()
	clock := newTestClock()
	log := applog.Nop()

	blobs := newFakeBlobs()

	threads := NewThreadService(db, store, blobs, log)
	threads.now = clock.Now
	messages := NewMessageService(db, store, threads, log)
	messages.now = clock.Now

	return &testEnv{db: db, store: store, clock: clock, blobs: blobs, threads: threads, messages: messages}
}

func activeSession() *Session {
	return &Session{
		UserID:    uuid.New(),
		TokenID:   uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Hour),
		State:     SignedIn,
	}
}

func wellFormed(n int) []ai.GeneratedQuestion {
	out := make([]ai.GeneratedQuestion, n)
	for i := range out {
		out[i] = ai.GeneratedQuestion{
			Question:      fmt.Sprintf("Question %d?", i+1),
			CorrectAnswer: fmt.Sprintf("right %d", i+1),
			WrongAnswers:  []string{fmt.Sprintf("wrong %d a", i+1), fmt.Sprintf("wrong %d b", i+1), fmt.Sprintf("wrong %d c", i+1)},
		}
	}
	return out
}
