package refresh

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
	defaultKeyPrefix  = "idrt"
	recordVersionV1   = 1
	maxConsumeRetries = 4

	flagUsed        = 1 << 0
	flagInvalidated = 1 << 1

	// Records outlive their expiry so validation can report ErrExpired
	// instead of ErrNotFound for a while after the deadline.
	expiredRetention = 30 * 24 * time.Hour
)

// RedisStore is the production Store, one Redis key per token value plus a
// per-user set for revocation.
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

func (s *RedisStore) key(value string) string {
	return s.prefix + ":" + value
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Create persists tok and indexes it under its user.
func (s *RedisStore) Create(ctx context.Context, tok *Token) error {
	encoded, err := encodeRecord(tok)
	if err != nil {
		return err
	}

	ttl := tok.ExpiresAt.Sub(tok.CreatedAt) + expiredRetention
	if ttl <= 0 {
		return errors.New("refresh token expires before its creation time")
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(tok.Value), encoded, ttl)
		pipe.SAdd(ctx, s.userKey(tok.UserID), tok.Value)
		pipe.Expire(ctx, s.userKey(tok.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Find loads the record stored under value.
func (s *RedisStore) Find(ctx context.Context, value string) (*Token, error) {
	data, err := s.redis.Get(ctx, s.key(value)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return decodeRecord(value, data)
}

// ConsumeIfUnused atomically flips the used flag. Exactly one concurrent
// caller wins; the rest get ErrAlreadyUsed.
func (s *RedisStore) ConsumeIfUnused(ctx context.Context, value string) (*Token, error) {
	key := s.key(value)

	for i := 0; i < maxConsumeRetries; i++ {
		var consumed *Token

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeRecord(value, data)
			if err != nil {
				return err
			}
			if rec.Used {
				return ErrAlreadyUsed
			}
			if rec.Invalidated {
				return ErrInvalidated
			}

			rec.Used = true
			updated, err := encodeRecord(rec)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = rec
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrNotFound
			case errors.Is(err, ErrAlreadyUsed), errors.Is(err, ErrInvalidated):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		return consumed, nil
	}

	// Retry exhaustion means the key kept changing under us, which for a
	// single-use record means another caller consumed it.
	return nil, ErrAlreadyUsed
}

// Invalidate flips the invalidated flag on the record stored under value.
func (s *RedisStore) Invalidate(ctx context.Context, value string) error {
	key := s.key(value)

	for i := 0; i < maxConsumeRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeRecord(value, data)
			if err != nil {
				return err
			}
			if rec.Invalidated {
				return nil
			}

			rec.Invalidated = true
			updated, err := encodeRecord(rec)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: invalidate retries exhausted", ErrUnavailable)
}

// InvalidateAllForUser invalidates every live record indexed under userID.
func (s *RedisStore) InvalidateAllForUser(ctx context.Context, userID string) error {
	values, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, value := range values {
		if err := s.Invalidate(ctx, value); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	return nil
}

func encodeRecord(tok *Token) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)

	var flags byte
	if tok.Used {
		flags |= flagUsed
	}
	if tok.Invalidated {
		flags |= flagInvalidated
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, tok.CreatedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, tok.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}

	for _, field := range []string{tok.JTI, tok.UserID} {
		if len(field) > 65535 {
			return nil, errors.New("refresh record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeRecord(value string, data []byte) (*Token, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid refresh record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	tok := &Token{
		Value:       value,
		Used:        flags&flagUsed != 0,
		Invalidated: flags&flagInvalidated != 0,
	}

	var createdAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	tok.CreatedAt = time.Unix(0, createdAt).UTC()
	tok.ExpiresAt = time.Unix(0, expiresAt).UTC()

	for _, dst := range []*string{&tok.JTI, &tok.UserID} {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, err
		}
		*dst = string(b)
	}

	return tok, nil
}
