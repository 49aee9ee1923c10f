package otp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix  = "idotp"
	recordVersionV1   = 1
	maxConsumeRetries = 4
)

// RedisStore is the production Store, one key per (identifier, code) pair.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix selects the default.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(code, identifier string) string {
	return s.prefix + ":" + identifier + ":" + code
}

// Save persists rec under its (identifier, code) key.
func (s *RedisStore) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("otp ttl must be positive")
	}

	encoded, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(rec.Code, rec.Identifier), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Consume atomically deletes and returns the record matching (code,
// identifier). A record past its expiry is deleted and reported as
// ErrInvalidOrExpired.
func (s *RedisStore) Consume(ctx context.Context, code, identifier string, now time.Time) (*Record, error) {
	key := s.key(code, identifier)

	for i := 0; i < maxConsumeRetries; i++ {
		var consumed *Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeRecord(code, identifier, data)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			if now.After(rec.ExpiresAt) {
				return ErrInvalidOrExpired
			}

			consumed = rec
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, ErrInvalidOrExpired):
				return nil, ErrInvalidOrExpired
			default:
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		return consumed, nil
	}

	return nil, ErrInvalidOrExpired
}

func encodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}

	if len(rec.Token) > 65535 {
		return nil, errors.New("otp record token too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.Token))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.Token)

	return buf.Bytes(), nil
}

func decodeRecord(code, identifier string, data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	rec := &Record{Code: code, Identifier: identifier}

	var expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	rec.ExpiresAt = time.Unix(0, expiresAt).UTC()

	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, err
	}
	rec.Token = string(b)

	return rec, nil
}
