package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// StartLocker 开考互斥；ok=false 表示同一学生同一技能同一周的另一请求正在开考
type StartLocker interface {
	Acquire(ctx context.Context, studentID, skillID uint, week string) (release func(), ok bool, err error)
}

// AttemptLock 基于 Redis SETNX 的开考互斥，未配置 Redis 时所有操作直接成功。
// 唯一索引始终是最终防线，这里只是把并发请求挡在事务之外。
type AttemptLock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewAttemptLock(client *redis.Client, ttl time.Duration) *AttemptLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &AttemptLock{Client: client, TTL: ttl}
}

func lockKey(studentID, skillID uint, week string) string {
	return fmt.Sprintf("skillset:attempt-start:%d:%d:%s", studentID, skillID, week)
}

// Acquire 返回释放函数；ok=false 表示另一请求持有锁
func (l *AttemptLock) Acquire(ctx context.Context, studentID, skillID uint, week string) (release func(), ok bool, err error) {
	if l == nil || l.Client == nil {
		return func() {}, true, nil
	}
	key := lockKey(studentID, skillID, week)
	ok, err = l.Client.SetNX(ctx, key, 1, l.TTL).Result()
	if err != nil || !ok {
		return func() {}, ok, err
	}
	return func() {
		l.Client.Del(context.Background(), key)
	}, true, nil
}
