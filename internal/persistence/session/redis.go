/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

package session

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is the durable SessionStore backend: session existence and
// expiry survive broker restarts.
type RedisStore struct {
	client *redis.Client
}

const keyPrefix = "connectcore:session:"

// NewRedisStore returns a RedisStore dialing addr/db with password (empty
// for no auth). Dialing is lazy: go-redis connects on first command.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (r *RedisStore) Exists(ctx context.Context, clientID string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+clientID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) StartPersistence(ctx context.Context, clientID string, sessionExists bool, effectiveExpiry uint32) (bool, error) {
	key := keyPrefix + clientID
	var ttl time.Duration
	if effectiveExpiry > 0 {
		ttl = time.Duration(effectiveExpiry) * time.Second
	}
	if err := r.client.Set(ctx, key, strconv.FormatUint(uint64(effectiveExpiry), 10), ttl).Err(); err != nil {
		return false, err
	}
	return sessionExists, nil
}

func (r *RedisStore) InvalidateSharedCache(clientID string) {
	r.client.Del(context.Background(), "connectcore:shared-sub-cache:"+clientID)
}
