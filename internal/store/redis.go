package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
)

// RedisResultStore keeps lesson results as JSON strings. SET NX provides the
// first-write lock; keys never expire.
type RedisResultStore struct {
	rdb    goredis.UniversalClient
	prefix string
}

func NewRedisResultStore(rdb goredis.UniversalClient, prefix string) *RedisResultStore {
	if prefix == "" {
		prefix = "lesson_result"
	}
	return &RedisResultStore{rdb: rdb, prefix: prefix}
}

func (s *RedisResultStore) key(studentID, lessonID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, studentID, lessonID)
}

func (s *RedisResultStore) CreateResult(ctx context.Context, r lesson.Result) (lesson.Result, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return lesson.Result{}, err
	}
	ok, err := s.rdb.SetNX(ctx, s.key(r.StudentID, r.LessonID), raw, 0).Result()
	if err != nil {
		return lesson.Result{}, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		existing, err := s.GetResult(ctx, r.StudentID, r.LessonID)
		if err != nil {
			return lesson.Result{}, err
		}
		return existing, apperr.ErrAlreadySubmitted
	}
	return r, nil
}

func (s *RedisResultStore) GetResult(ctx context.Context, studentID, lessonID string) (lesson.Result, error) {
	raw, err := s.rdb.Get(ctx, s.key(studentID, lessonID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return lesson.Result{}, apperr.NotFoundf("result %s/%s", studentID, lessonID)
	}
	if err != nil {
		return lesson.Result{}, fmt.Errorf("redis get: %w", err)
	}
	var r lesson.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return lesson.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}

func (s *RedisResultStore) ListResults(ctx context.Context, studentID string, lessonIDs []string) (map[string]lesson.Result, error) {
	out := make(map[string]lesson.Result, len(lessonIDs))
	if len(lessonIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(lessonIDs))
	for i, id := range lessonIDs {
		keys[i] = s.key(studentID, id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r lesson.Result
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", keys[i], err)
		}
		out[lessonIDs[i]] = r
	}
	return out, nil
}
