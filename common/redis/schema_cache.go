package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lexicara/kintone-http-service/common/kintone"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

const formFieldsKeyPrefix = "kintone:form-fields:"

func formFieldsKey(appID string, preview bool) string {
	env := "live"
	if preview {
		env = "preview"
	}
	return fmt.Sprintf("%s%s:%s", formFieldsKeyPrefix, env, appID)
}

// SchemaCache caches form-field configurations per app. Entries expire
// on their own and are dropped eagerly when a deployment succeeds, since
// a deploy is the only way the schema changes.
type SchemaCache struct {
	client *RedisClient
	ttl    time.Duration
}

func NewSchemaCache(client *RedisClient, ttl time.Duration) *SchemaCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SchemaCache{client: client, ttl: ttl}
}

// GetFormFields returns the cached configuration, or None on a miss.
// Cache errors other than a miss are logged and treated as misses.
func (c *SchemaCache) GetFormFields(ctx context.Context, appID string, preview bool) mo.Option[kintone.FormFields] {
	raw, err := c.client.Get(ctx, formFieldsKey(appID, preview))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("appID", appID).Msg("Form-fields cache read failed")
		}
		return mo.None[kintone.FormFields]()
	}

	var fields kintone.FormFields
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		log.Warn().Err(err).Str("appID", appID).Msg("Form-fields cache entry corrupt, dropping")
		c.client.Delete(ctx, formFieldsKey(appID, preview))
		return mo.None[kintone.FormFields]()
	}
	return mo.Some(fields)
}

// SetFormFields stores a configuration. Failures are logged only; the
// cache is never on the request's critical path.
func (c *SchemaCache) SetFormFields(ctx context.Context, appID string, preview bool, fields kintone.FormFields) {
	payload, err := json.Marshal(fields)
	if err != nil {
		log.Warn().Err(err).Str("appID", appID).Msg("Failed to encode form fields for cache")
		return
	}
	if err := c.client.Set(ctx, formFieldsKey(appID, preview), payload, c.ttl); err != nil {
		log.Warn().Err(err).Str("appID", appID).Msg("Form-fields cache write failed")
	}
}

// Invalidate drops both the live and preview entries for an app.
func (c *SchemaCache) Invalidate(ctx context.Context, appID string) error {
	for _, preview := range []bool{false, true} {
		if err := c.client.Delete(ctx, formFieldsKey(appID, preview)); err != nil {
			return fmt.Errorf("invalidating form-fields cache for app %s: %w", appID, err)
		}
	}
	return nil
}
