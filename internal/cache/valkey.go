package cache

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// ValkeyTLSConfig toggles TLS for the shared Valkey connection.
type ValkeyTLSConfig struct {
	Enabled bool
	CAFile  string
}

// ValkeyConfig describes the connection to the shared cache instance.
type ValkeyConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      ValkeyTLSConfig
}

type valkeyStore struct {
	client valkey.Client
}

// NewValkey connects to the shared Valkey instance and verifies it with a
// ping before handing the store to the orchestrator.
func NewValkey(cfg ValkeyConfig) (TaggedStore, error) {
	client, err := DialValkey(cfg)
	if err != nil {
		return nil, err
	}
	return &valkeyStore{client: client}, nil
}

// DialValkey builds the shared client. The rate-limit store reuses it so
// both subsystems dial Valkey the same way.
func DialValkey(cfg ValkeyConfig) (valkey.Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("cache: valkey address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("cache: read valkey ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("cache: valkey ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("cache: valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: valkey ping: %w", err)
	}
	return client, nil
}

func (s *valkeyStore) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache: valkey get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: valkey get bytes: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("cache: valkey unmarshal: %w", err)
	}
	return entry, true, nil
}

func (s *valkeyStore) Store(ctx context.Context, key string, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.StoredAt) {
		return errors.New("cache: valkey entry expiry required")
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: valkey marshal: %w", err)
	}
	cmd := s.client.B().Set().Key(key).Value(string(payload)).Px(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache: valkey set: %w", err)
	}
	for _, tag := range entry.Tags {
		sadd := s.client.B().Sadd().Key(tagSetKey(tag)).Member(key).Build()
		if err := s.client.Do(ctx, sadd).Error(); err != nil {
			return fmt.Errorf("cache: valkey tag %s: %w", tag, err)
		}
	}
	return nil
}

func (s *valkeyStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("cache: valkey del: %w", err)
	}
	return nil
}

// InvalidateTags resolves each tag set to its member keys and deletes both.
// Members whose entries already expired are harmless; DEL on an absent key
// is a no-op.
func (s *valkeyStore) InvalidateTags(ctx context.Context, tags []string) (int64, error) {
	var removed int64
	for _, tag := range tags {
		resp := s.client.Do(ctx, s.client.B().Smembers().Key(tagSetKey(tag)).Build())
		members, err := resp.AsStrSlice()
		if err != nil {
			if errors.Is(resp.Error(), valkey.Nil) {
				continue
			}
			return removed, fmt.Errorf("cache: valkey smembers %s: %w", tag, err)
		}
		if len(members) > 0 {
			del := s.client.B().Del().Key(members...).Build()
			count, err := s.client.Do(ctx, del).ToInt64()
			if err != nil {
				return removed, fmt.Errorf("cache: valkey del tagged: %w", err)
			}
			removed += count
		}
		if err := s.client.Do(ctx, s.client.B().Del().Key(tagSetKey(tag)).Build()).Error(); err != nil {
			return removed, fmt.Errorf("cache: valkey del tag set: %w", err)
		}
	}
	return removed, nil
}

func (s *valkeyStore) Close(context.Context) error {
	s.client.Close()
	return nil
}

func tagSetKey(tag string) string {
	return "tag:" + tag
}
