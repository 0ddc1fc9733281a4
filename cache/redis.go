// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
)

const redisPrefix = "wespe:map:"

// RedisStore keeps entries as plain redis strings.
type RedisStore struct {
	client *redis.Client
	server *miniredis.Miniredis
}

// NewRedisStore connects to addr. An empty addr starts an in-process server
// that lives as long as the store.
func NewRedisStore(addr string) (*RedisStore, error) {
	s := &RedisStore{}
	if len(addr) == 0 {
		srv, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("unable to start miniredis server: %w", err)
		}
		s.server = srv
		addr = srv.Addr()
	}
	s.client = redis.NewClient(&redis.Options{Addr: addr})
	if err := s.client.Ping().Err(); err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to ping redis server at %v: %w", addr, err)
	}
	return s, nil
}

func (s *RedisStore) Exists(ctx context.Context, name string) (bool, error) {
	n, err := s.client.WithContext(ctx).Exists(redisPrefix + name).Result()
	return n > 0, err
}

func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	b, err := s.client.WithContext(ctx).Get(redisPrefix + name).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	return b, err
}

func (s *RedisStore) Save(ctx context.Context, name string, b []byte) error {
	return s.client.WithContext(ctx).Set(redisPrefix+name, b, 0).Err()
}

func (s *RedisStore) Close() error {
	err := s.client.Close()
	if s.server != nil {
		s.server.Close()
	}
	return err
}
