package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateSessionKey returns the cache key for a candidate's login session
func (r *CacheKeyStruct) CandidateSessionKey(candidateID int) string {
	return fmt.Sprintf("login:%d", candidateID)
}

// QuestionStartKey returns the cache key for the server-recorded start
// timestamp of a question within a session
func (r *CacheKeyStruct) QuestionStartKey(sessionID, questionID string) string {
	return fmt.Sprintf("session:%s:question:%s:started_at", sessionID, questionID)
}

// SessionAnswersKey returns the cache key for a session's autosaved answers
func (r *CacheKeyStruct) SessionAnswersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:answers", sessionID)
}

var CacheKey = NewCacheKeyStruct()
