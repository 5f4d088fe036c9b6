package utils

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
)

// RedisStatusStore is a fast idempotent seen/read marker on top of redis.
// The story engine uses it to short-circuit duplicate view recording and the
// chat engine uses it as a read-status hint; the relational receipts remain
// the source of truth.
type RedisStatusStore struct {
	inner     *redis.Client
	keyParser RedisKeyParser
}

const (
	// Redis only has string type, there is no boolean or int, so we use "1" to represent true
	RedisTrue  = "1"
	RedisFalse = "0"
)

var ctx = context.Background()

func GetRedisStatusStore() (*RedisStatusStore, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	_, err := redisClient.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	return &RedisStatusStore{
		inner:     redisClient,
		keyParser: RedisKeyParser{delimiter: "__"},
	}, nil
}

type RedisKeyParser struct {
	delimiter string
}

func (r RedisKeyParser) DecodeItemKey(key string) (string, string, error) {
	splits := strings.Split(key, r.delimiter)
	if (len(splits)) != 2 {
		return "", "", fmt.Errorf("invalid key: %s", key)
	}
	return splits[0], splits[1], nil
}

func (r RedisKeyParser) ValidateId(id string) bool {
	return !strings.Contains(id, r.delimiter)
}

func (r RedisKeyParser) EncodeItemKey(userId string, itemId string) (string, error) {
	if !r.ValidateId(userId) || !r.ValidateId(itemId) {
		return "", fmt.Errorf("invalid userId or itemId")
	}
	return fmt.Sprintf("%s%s%s", userId, r.delimiter, itemId), nil
}

func (r RedisKeyParser) MustEncodeItemKey(userId string, itemId string) string {
	if !r.ValidateId(userId) || !r.ValidateId(itemId) {
		panic(fmt.Errorf("invalid userId or itemId with delimiter: %s, %s, %s", userId, itemId, r.delimiter))
	}
	return fmt.Sprintf("%s%s%s", userId, r.delimiter, itemId)
}

// GetItemsSeenStatus returns, for each item id, whether the user already has
// the seen marker set. Missing keys read as false.
func (r *RedisStatusStore) GetItemsSeenStatus(itemIds []string, userId string) ([]bool, error) {
	if len(itemIds) == 0 {
		return []bool{}, nil
	}

	itemKeys := []string{}

	for _, id := range itemIds {
		itemKeys = append(itemKeys, r.keyParser.MustEncodeItemKey(userId, id))
	}

	res, err := r.inner.MGet(ctx, itemKeys...).Result()
	status := []bool{}
	for _, v := range res {
		if v == nil {
			status = append(status, false)
			continue
		}

		if v == RedisTrue {
			status = append(status, true)
			continue
		}
		status = append(status, false)
	}
	return status, err
}

// SetItemsSeenStatus marks items seen with MSetNX, which keeps the operation
// idempotent: a second marking of the same (user, item) pair is a no-op.
func (r RedisStatusStore) SetItemsSeenStatus(itemIds []string, userId string, seen bool) error {
	if seen {
		keyValues := []interface{}{}
		for _, id := range itemIds {
			keyValues = append(keyValues, r.keyParser.MustEncodeItemKey(userId, id))
			keyValues = append(keyValues, RedisTrue)
		}
		return r.inner.MSetNX(ctx, keyValues...).Err()
	}

	keyValues := []string{}
	for _, id := range itemIds {
		keyValues = append(keyValues, r.keyParser.MustEncodeItemKey(userId, id))
	}
	return r.inner.Del(ctx, keyValues...).Err()
}
