package ai

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/local/newsdigest/internal/metrics"
)

// Breaker tracks per-model cooldowns after transient failures.
type Breaker interface {
	IsOpen(ctx context.Context, model string) bool
	Open(ctx context.Context, model string)
	Close(ctx context.Context, model string)
}

// RedisBreaker keeps breaker state in Redis so every worker process shares
// the same view of a struggling model.
type RedisBreaker struct {
	rdb         *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewRedisBreaker creates a breaker; backoff doubles from base up to max.
func NewRedisBreaker(rdb *redis.Client, baseBackoff, maxBackoff time.Duration) *RedisBreaker {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	return &RedisBreaker{rdb: rdb, baseBackoff: baseBackoff, maxBackoff: maxBackoff}
}

func breakerKey(model string) string { return "cb:newsdigest:" + model }

// Open opens or extends the cooldown for model.
func (b *RedisBreaker) Open(ctx context.Context, model string) {
	key := breakerKey(model)
	failures, _ := b.rdb.HIncrBy(ctx, key, "failures", 1).Result()
	if failures < 1 {
		failures = 1
	}

	// 30s, 60s, 120s, ... capped
	backoff := b.baseBackoff
	for i := int64(1); i < failures; i++ {
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
			break
		}
	}
	retryAt := time.Now().Add(backoff).Unix()

	b.rdb.HSet(ctx, key, map[string]interface{}{
		"state":     "open",
		"retry_at":  retryAt,
		"opened_at": time.Now().Unix(),
	})
	b.rdb.Expire(ctx, key, 10*time.Minute)
	metrics.BreakerOpened(model)

	zerolog.Ctx(ctx).Warn().
		Str("model", model).
		Dur("cooldown", backoff).
		Int64("failures", failures).
		Msg("circuit breaker OPENED")
}

// IsOpen reports whether model is still cooling down. An expired cooldown
// moves the breaker to half-open and lets one request through.
func (b *RedisBreaker) IsOpen(ctx context.Context, model string) bool {
	key := breakerKey(model)
	vals, err := b.rdb.HMGet(ctx, key, "state", "retry_at").Result()
	if err != nil || len(vals) != 2 {
		return false
	}
	state, _ := vals[0].(string)
	if state != "open" {
		return false
	}
	retryAtStr, _ := vals[1].(string)
	retryAt, _ := strconv.ParseInt(retryAtStr, 10, 64)
	if time.Now().Unix() >= retryAt {
		b.rdb.HSet(ctx, key, "state", "half_open")
		return false
	}
	return true
}

// Close resets the breaker after a success.
func (b *RedisBreaker) Close(ctx context.Context, model string) {
	key := breakerKey(model)
	state, _ := b.rdb.HGet(ctx, key, "state").Result()
	if state == "" || state == "closed" {
		return
	}
	b.rdb.Del(ctx, key)
	metrics.BreakerClosed(model)
}

// ResilientClient owns retry, backoff and model failover for chat calls so
// callers see either a response or a terminal error.
type ResilientClient struct {
	Inner   ChatClient
	Breaker Breaker // optional
	// Fallbacks maps a model to the model tried when it fails transiently.
	Fallbacks   map[string]string
	MaxAttempts int
	BaseBackoff time.Duration
	MaxInflight int

	mu  sync.Mutex
	sem map[string]chan struct{}
}

// NewResilientClient wraps inner with three attempts per model and a 2s base
// backoff.
func NewResilientClient(inner ChatClient, breaker Breaker, fallbacks map[string]string) *ResilientClient {
	return &ResilientClient{
		Inner:       inner,
		Breaker:     breaker,
		Fallbacks:   fallbacks,
		MaxAttempts: 3,
		BaseBackoff: 2 * time.Second,
		MaxInflight: 4,
		sem:         map[string]chan struct{}{},
	}
}

// acquire reserves one of MaxInflight slots for model.
func (c *ResilientClient) acquire(ctx context.Context, model string) (func(), error) {
	if c.MaxInflight <= 0 {
		return func() {}, nil
	}
	c.mu.Lock()
	if c.sem == nil {
		c.sem = map[string]chan struct{}{}
	}
	ch, ok := c.sem[model]
	if !ok {
		ch = make(chan struct{}, c.MaxInflight)
		c.sem[model] = ch
	}
	c.mu.Unlock()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *ResilientClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	tried := map[string]bool{}
	for model := req.Model; model != "" && !tried[model]; model = c.Fallbacks[model] {
		tried[model] = true
		if c.Breaker != nil && c.Breaker.IsOpen(ctx, model) {
			zerolog.Ctx(ctx).Debug().Str("model", model).Msg("circuit breaker OPEN - skipping model")
			lastErr = fmt.Errorf("model %s: %w", model, ErrRateLimited)
			continue
		}
		r := req
		r.Model = model
		resp, err := c.callModel(ctx, r)
		if err == nil {
			if c.Breaker != nil {
				c.Breaker.Close(ctx, model)
			}
			return resp, nil
		}
		lastErr = err
		if !isTransient(err) {
			return resp, err
		}
		if c.Breaker != nil {
			c.Breaker.Open(ctx, model)
		}
		if next := c.Fallbacks[model]; next != "" {
			zerolog.Ctx(ctx).Warn().Err(err).Str("model", model).Str("fallback", next).Msg("transient error - trying fallback model")
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no model configured")
	}
	return openai.ChatCompletionResponse{}, lastErr
}

// callModel retries transient failures on one model with exponential backoff.
func (c *ResilientClient) callModel(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := c.BaseBackoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			metrics.IncRetry()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, ctx.Err()
			}
			backoff *= 2
		}
		release, err := c.acquire(ctx, req.Model)
		if err != nil {
			return openai.ChatCompletionResponse{}, err
		}
		start := time.Now()
		resp, err := c.Inner.CreateChatCompletion(ctx, req)
		release()
		metrics.ObserveProvider(req.Model, resultLabel(err), time.Since(start))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		// refusals are model specific; fail over instead of retrying
		if !isTransient(err) || IsContentRefused(err) {
			break
		}
	}
	return openai.ChatCompletionResponse{}, lastErr
}
