package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func UserPrefix(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:", userID)
}

func ThreadsKey(userID uuid.UUID) string {
	return UserPrefix(userID) + "threads"
}

func MessagesKey(userID, threadID uuid.UUID) string {
	return fmt.Sprintf("%smessages:%s", UserPrefix(userID), threadID)
}

func QuizzesKey(userID uuid.UUID) string {
	return UserPrefix(userID) + "quizzes"
}

func QuizKey(userID, quizID uuid.UUID) string {
	return fmt.Sprintf("%squiz:%s", UserPrefix(userID), quizID)
}

func QuestionsKey(userID, quizID uuid.UUID) string {
	return fmt.Sprintf("%squestions:%s", UserPrefix(userID), quizID)
}

func PlayKey(userID, quizID uuid.UUID) string {
	return fmt.Sprintf("%splay:%s", UserPrefix(userID), quizID)
}

// SessionKey is invalidated when the session holding tokenID signs out.
func SessionKey(userID uuid.UUID, tokenID string) string {
	return UserPrefix(userID) + "session:" + tokenID
}

func BannerLockKey(quizID uuid.UUID) string {
	return fmt.Sprintf("lock:banner:%s", quizID)
}

func RevokedTokenKey(tokenID string) string {
	return "revoked:" + tokenID
}
