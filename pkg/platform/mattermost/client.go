// Copyright 2024-2026 Aiku AI

// Package mattermost adapts a Mattermost server to the relay's
// ChatPlatform capability interface. A team plays the role of a guild
// and root-threaded posts stand in for named threads.
package mattermost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"

	"github.com/catcord/langrelay/pkg/relay"
)

// Handler consumes the inbound events the client produces. The relay
// engine satisfies it.
type Handler interface {
	HandleMessage(ctx context.Context, msg *relay.Message)
	HandleReaction(ctx context.Context, evt *relay.ReactionEvent)
}

// Client is a single authenticated Mattermost connection feeding posted
// and reaction events into a Handler.
type Client struct {
	api       *model.Client4
	ws        *model.WebSocketClient
	serverURL string
	teamName  string
	botUserID string
	teamID    string
	handler   Handler
	log       zerolog.Logger

	channelsByID   *exsync.Map[string, *model.Channel]
	channelsByName *exsync.Map[string, *model.Channel]
	usersByID      *exsync.Map[string, *model.User]
	teamChannels   *exsync.Map[string, map[string]relay.Channel]
	queues         *exsync.Map[string, *dispatchQueue]

	stopOnce sync.Once
	stopChan chan struct{}
}

var _ relay.ChatPlatform = (*Client)(nil)

func New(serverURL, token, teamName string, log zerolog.Logger) *Client {
	api := model.NewAPIv4Client(serverURL)
	api.SetToken(token)
	return &Client{
		api:       api,
		serverURL: serverURL,
		teamName:  teamName,
		log:       log.With().Str("component", "mm_client").Logger(),

		channelsByID:   exsync.NewMap[string, *model.Channel](),
		channelsByName: exsync.NewMap[string, *model.Channel](),
		usersByID:      exsync.NewMap[string, *model.User](),
		teamChannels:   exsync.NewMap[string, map[string]relay.Channel](),
		queues:         exsync.NewMap[string, *dispatchQueue](),

		stopChan: make(chan struct{}),
	}
}

// dispatchQueue runs handler callbacks for one channel in arrival
// order. Each channel drains on its own goroutine, so a slow fan-out in
// one channel never stalls events from the others or the WebSocket
// read loop.
type dispatchQueue struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

func (q *dispatchQueue) enqueue(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()
	go q.drain()
}

func (q *dispatchQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		fn()
	}
}

// dispatch hands an event callback to the channel's ordered queue.
func (c *Client) dispatch(channelID string, fn func()) {
	q, ok := c.queues.Get(channelID)
	if !ok {
		q, _ = c.queues.GetOrSet(channelID, &dispatchQueue{})
	}
	q.enqueue(fn)
}

// SetHandler wires the event consumer. It must be called before
// Connect; the engine and the client reference each other, so neither
// can be passed to the other's constructor.
func (c *Client) SetHandler(h Handler) {
	c.handler = h
}

// TeamID returns the id of the team the client relays for. Only valid
// after Connect.
func (c *Client) TeamID() string {
	return c.teamID
}

// Connect verifies the session, resolves the team and starts the
// WebSocket event loop.
func (c *Client) Connect(ctx context.Context) error {
	me, _, err := c.api.GetMe(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to verify session: %w", err)
	}
	c.botUserID = me.Id
	c.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")

	if c.teamName != "" {
		team, _, err := c.api.GetTeamByName(ctx, c.teamName, "")
		if err != nil {
			return fmt.Errorf("failed to resolve team %q: %w", c.teamName, err)
		}
		c.teamID = team.Id
	} else {
		teams, _, err := c.api.GetTeamsForUser(ctx, c.botUserID, "")
		if err != nil {
			return fmt.Errorf("failed to list teams: %w", err)
		}
		if len(teams) == 0 {
			return fmt.Errorf("bot account is not a member of any team")
		}
		c.teamID = teams[0].Id
	}

	if err := c.connectWebSocket(); err != nil {
		return err
	}
	c.log.Info().Str("team_id", c.teamID).Msg("Connected to Mattermost")
	return nil
}

func (c *Client) connectWebSocket() error {
	wsURL := httpToWS(c.serverURL)
	var err error
	c.ws, err = model.NewWebSocketClient4(wsURL, c.api.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to create websocket client: %w", err)
	}
	c.ws.Listen()
	go c.listenWebSocket()
	c.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

func (c *Client) listenWebSocket() {
	for {
		select {
		case <-c.stopChan:
			return
		case evt, ok := <-c.ws.EventChannel:
			if !ok {
				c.log.Warn().Msg("WebSocket event channel closed, reconnecting")
				c.handleWebSocketDisconnect()
				return
			}
			if evt == nil {
				continue
			}
			c.handleEvent(evt)
		}
	}
}

func (c *Client) handleWebSocketDisconnect() {
	select {
	case <-c.stopChan:
		return
	default:
	}
	if err := c.connectWebSocket(); err != nil {
		c.log.Error().Err(err).Msg("Failed to reconnect WebSocket")
	}
}

// Disconnect closes the WebSocket connection and stops the event loop.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
}

// handleEvent dispatches a WebSocket event to the appropriate handler.
func (c *Client) handleEvent(evt *model.WebSocketEvent) {
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		c.handlePosted(evt)
	case model.WebsocketEventReactionAdded:
		c.handleReaction(evt, false)
	case model.WebsocketEventReactionRemoved:
		c.handleReaction(evt, true)
	case model.WebsocketEventChannelCreated, model.WebsocketEventChannelUpdated,
		model.WebsocketEventChannelDeleted, model.WebsocketEventChannelConverted:
		c.invalidateTeamChannels(evt)
	default:
		c.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
	}
}

// invalidateTeamChannels drops the cached channel enumeration after a
// channel changed, so the next message sees the new channel set.
func (c *Client) invalidateTeamChannels(evt *model.WebSocketEvent) {
	teamID, _ := evt.GetData()["team_id"].(string)
	if teamID == "" {
		teamID = evt.GetBroadcast().TeamId
	}
	if teamID == "" {
		teamID = c.teamID
	}
	c.teamChannels.Delete(teamID)
	c.log.Debug().Str("team_id", teamID).Str("event_type", string(evt.EventType())).
		Msg("Invalidated channel cache")
}

// parsePostedEvent extracts and validates a post from a WebSocket
// event, applying echo prevention. Returns (nil, nil) to skip silently.
func (c *Client) parsePostedEvent(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	// Echo prevention: skip own posts.
	if post.UserId == c.botUserID {
		return nil, nil
	}

	// Echo prevention: skip non-default post types (system messages).
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}

	// Echo prevention: skip webhook posts. Impersonated relay
	// deliveries carry this prop, so relaying them again would loop.
	if fromWebhook, _ := post.GetProp("from_webhook").(string); fromWebhook == "true" {
		return nil, nil
	}

	return &post, nil
}

// handlePosted parses the event on the read loop, then hands the
// conversion and the engine call to the channel's queue. The engine
// blocks until the whole fan-out completes, so it must never run on
// the loop itself.
func (c *Client) handlePosted(evt *model.WebSocketEvent) {
	if c.handler == nil {
		return
	}
	post, err := c.parsePostedEvent(evt)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to parse posted event")
		return
	}
	if post == nil {
		return
	}

	c.log.Debug().
		Str("post_id", post.Id).
		Str("channel_id", post.ChannelId).
		Str("user_id", post.UserId).
		Msg("Received new message")

	c.dispatch(post.ChannelId, func() {
		ctx := context.Background()
		msg, err := c.postToMessage(ctx, post)
		if err != nil {
			c.log.Warn().Err(err).Str("post_id", post.Id).Msg("Failed to convert post")
			return
		}
		c.handler.HandleMessage(ctx, msg)
	})
}

// postToMessage converts a Mattermost post into the relay's message
// shape. Threaded posts keep their channel and carry the root post as
// the thread context.
func (c *Client) postToMessage(ctx context.Context, post *model.Post) (*relay.Message, error) {
	channel, err := c.channelByID(ctx, post.ChannelId)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel: %w", err)
	}

	msg := &relay.Message{
		ID:      post.Id,
		GuildID: c.teamID,
		Channel: relay.Channel{ID: channel.Id, Name: channel.Name},
		Text:    post.Message,
	}

	if user, err := c.userByID(ctx, post.UserId); err != nil {
		c.log.Warn().Err(err).Str("user_id", post.UserId).Msg("Failed to resolve author")
		msg.Author = relay.Author{ID: post.UserId, DisplayName: post.UserId}
	} else {
		msg.Author = relay.Author{
			ID:          user.Id,
			DisplayName: userDisplayName(user),
			AvatarURL:   c.userAvatarURL(user.Id),
			IsBot:       user.IsBot,
		}
	}

	if post.RootId != "" {
		msg.Thread = &relay.Thread{ID: post.RootId}
	}

	for _, fileID := range post.FileIds {
		info, _, err := c.api.GetFileInfo(ctx, fileID)
		if err != nil {
			c.log.Warn().Err(err).Str("file_id", fileID).Msg("Failed to get file info")
			continue
		}
		msg.Attachments = append(msg.Attachments, relay.Attachment{ID: fileID, Name: info.Name})
	}

	return msg, nil
}

// handleReaction shares the channel's queue with posts, so a reaction
// to a message is mirrored only after that message's own fan-out has
// committed its linkage.
func (c *Client) handleReaction(evt *model.WebSocketEvent, remove bool) {
	if c.handler == nil {
		return
	}
	reactionJSON, ok := evt.GetData()["reaction"].(string)
	if !ok {
		return
	}
	var reaction model.Reaction
	if err := json.Unmarshal([]byte(reactionJSON), &reaction); err != nil {
		c.log.Warn().Err(err).Msg("Failed to unmarshal reaction")
		return
	}

	channelID := evt.GetBroadcast().ChannelId
	c.dispatch(channelID, func() {
		c.handler.HandleReaction(context.Background(), &relay.ReactionEvent{
			GuildID:   c.teamID,
			ChannelID: channelID,
			MessageID: reaction.PostId,
			Emoji:     reactionToEmoji(reaction.EmojiName),
			UserID:    reaction.UserId,
			Remove:    remove,
			FromRelay: reaction.UserId == c.botUserID,
		})
	})
}

func (c *Client) channelByID(ctx context.Context, channelID string) (*model.Channel, error) {
	if ch, ok := c.channelsByID.Get(channelID); ok {
		return ch, nil
	}
	ch, _, err := c.api.GetChannel(ctx, channelID, "")
	if err != nil {
		return nil, err
	}
	c.cacheChannel(ch)
	return ch, nil
}

func (c *Client) userByID(ctx context.Context, userID string) (*model.User, error) {
	if u, ok := c.usersByID.Get(userID); ok {
		return u, nil
	}
	u, _, err := c.api.GetUser(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	c.usersByID.Set(userID, u)
	return u, nil
}

func (c *Client) cacheChannel(ch *model.Channel) {
	c.channelsByID.Set(ch.Id, ch)
	c.channelsByName.Set(ch.Name, ch)
}

// userAvatarURL is the public profile-image endpoint for a user; used
// as the impersonation icon on mirrored posts.
func (c *Client) userAvatarURL(userID string) string {
	return fmt.Sprintf("%s/api/v4/users/%s/image", c.serverURL, userID)
}

func userDisplayName(u *model.User) string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
