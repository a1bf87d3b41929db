package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis based caching for the read-mostly account directory.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(companyID int64, code string) string {
	return fmt.Sprintf("accounts:%d:%s", companyID, code)
}

// Get loads a cached account. The boolean reports a hit.
func (c *Cache) Get(ctx context.Context, companyID int64, code string) (Account, bool) {
	if c == nil || c.client == nil {
		return Account{}, false
	}
	raw, err := c.client.Get(ctx, cacheKey(companyID, code)).Bytes()
	if err != nil {
		return Account{}, false
	}
	var account Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return Account{}, false
	}
	return account, true
}

// Set stores an account with the configured TTL.
func (c *Cache) Set(ctx context.Context, account Account) error {
	if c == nil || c.client == nil {
		return nil
	}
	if account.Code == "" {
		return errors.New("accounts: cache requires a code")
	}
	raw, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(account.CompanyID, account.Code), raw, c.ttl).Err()
}

// Invalidate drops a cached account after an activation toggle.
func (c *Cache) Invalidate(ctx context.Context, companyID int64, code string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(companyID, code)).Err()
}
