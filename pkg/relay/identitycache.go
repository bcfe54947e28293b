// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// IdentityName is the display name the relay claims on every send
// identity it creates or reuses.
const IdentityName = "Catcord"

const identityCacheLimit = 64

// IdentityCache keeps one send identity per channel, bounded FIFO.
// A cached nil means the channel denied identity management; callers
// fall back to plain sends without retrying the API every message.
type IdentityCache struct {
	platform ChatPlatform
	log      zerolog.Logger

	mu      sync.Mutex
	entries map[string]SendIdentity
	order   []string
	flights map[string]*sync.Mutex
}

func NewIdentityCache(platform ChatPlatform, log zerolog.Logger) *IdentityCache {
	return &IdentityCache{
		platform: platform,
		log:      log.With().Str("component", "identity_cache").Logger(),
		entries:  make(map[string]SendIdentity),
		flights:  make(map[string]*sync.Mutex),
	}
}

// Get returns the send identity for a channel, resolving and caching
// it on first use. The returned identity is nil when the relay lacks
// permission to manage identities in that channel.
func (c *IdentityCache) Get(ctx context.Context, channelID string) SendIdentity {
	// One resolution per channel at a time. Without this, two
	// concurrent first uses both miss the cache and list-then-create,
	// leaving a duplicate identity on the platform.
	flight := c.flight(channelID)
	flight.Lock()
	defer flight.Unlock()

	c.mu.Lock()
	if id, ok := c.entries[channelID]; ok {
		c.mu.Unlock()
		return id
	}
	c.mu.Unlock()

	id, err := c.resolve(ctx, channelID)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			c.log.Warn().Str("channel_id", channelID).
				Msg("No permission to manage send identities, falling back to plain sends")
			c.put(channelID, nil)
			return nil
		}
		// Transient failure: do not cache, retry on the next message.
		c.log.Warn().Err(err).Str("channel_id", channelID).Msg("Failed to resolve send identity")
		return nil
	}
	c.put(channelID, id)
	return id
}

// Invalidate drops a channel's cached identity, e.g. after a send
// through it failed because the identity was deleted out of band.
func (c *IdentityCache) Invalidate(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[channelID]; !ok {
		return
	}
	delete(c.entries, channelID)
	for i, key := range c.order {
		if key == channelID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *IdentityCache) flight(channelID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu, ok := c.flights[channelID]
	if !ok {
		mu = &sync.Mutex{}
		c.flights[channelID] = mu
	}
	return mu
}

func (c *IdentityCache) resolve(ctx context.Context, channelID string) (SendIdentity, error) {
	existing, err := c.platform.ListSendIdentities(ctx, channelID)
	if err != nil {
		return nil, err
	}
	for _, id := range existing {
		if id.Name() == IdentityName {
			return id, nil
		}
	}
	return c.platform.CreateSendIdentity(ctx, channelID, IdentityName)
}

func (c *IdentityCache) put(channelID string, id SendIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[channelID]; ok {
		c.entries[channelID] = id
		return
	}
	for len(c.order) >= identityCacheLimit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[channelID] = id
	c.order = append(c.order, channelID)
}

// Len reports the number of cached channels.
func (c *IdentityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
