// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"

	"github.com/catcord/langrelay/pkg/relay"
)

// recordingHandler captures relay events for assertions.
type recordingHandler struct {
	mu        sync.Mutex
	messages  []*relay.Message
	reactions []*relay.ReactionEvent
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg *relay.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandler) HandleReaction(_ context.Context, evt *relay.ReactionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reactions = append(h.reactions, evt)
}

// waitMessages blocks until the handler has received n messages.
// Events reach the handler on per-channel queue goroutines.
func (h *recordingHandler) waitMessages(t *testing.T, n int) []*relay.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		if len(h.messages) >= n {
			out := append([]*relay.Message(nil), h.messages...)
			h.mu.Unlock()
			return out
		}
		h.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d handled messages", n)
	return nil
}

func (h *recordingHandler) waitReactions(t *testing.T, n int) []*relay.ReactionEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		if len(h.reactions) >= n {
			out := append([]*relay.ReactionEvent(nil), h.reactions...)
			h.mu.Unlock()
			return out
		}
		h.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d handled reactions", n)
	return nil
}

type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM simulates the Mattermost API, recording calls and serving
// canned responses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall

	Users    map[string]*model.User
	Channels map[string]*model.Channel
	// TeamChannels maps "teamID:userID" to channel list.
	TeamChannels map[string][]*model.Channel
	Files        map[string]*model.FileInfo
	FileData     map[string][]byte
	Hooks        []*model.IncomingWebhook
	// ForbidEndpoints makes matching path prefixes return 403.
	ForbidEndpoints map[string]bool
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		Users:           make(map[string]*model.User),
		Channels:        make(map[string]*model.Channel),
		TeamChannels:    make(map[string][]*model.Channel),
		Files:           make(map[string]*model.FileInfo),
		FileData:        make(map[string][]byte),
		ForbidEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeMM) Close() {
	f.Server.Close()
}

func (f *fakeMM) record(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{Method: method, Path: path, Body: body})
}

func (f *fakeMM) CountCalls(pathPart string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.Path, pathPart) {
			n++
		}
	}
	return n
}

func (f *fakeMM) LastCall(pathPart string) (endpointCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if strings.Contains(f.calls[i].Path, pathPart) {
			return f.calls[i], true
		}
	}
	return endpointCall{}, false
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.record(r.Method, r.URL.Path, string(body))

	path := r.URL.Path
	for prefix := range f.ForbidEndpoints {
		if strings.Contains(path, prefix) {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "api.context.permissions.app_error", "status_code": 403,
			})
			return
		}
	}

	switch {
	// GET /api/v4/users/{uid}/teams/{tid}/channels
	case r.Method == "GET" && strings.Contains(path, "/teams/") && strings.HasSuffix(path, "/channels"):
		parts := strings.Split(path, "/")
		if len(parts) >= 7 {
			key := parts[6] + ":" + parts[4]
			if chs, ok := f.TeamChannels[key]; ok {
				_ = json.NewEncoder(w).Encode(chs)
				return
			}
		}
		_ = json.NewEncoder(w).Encode([]*model.Channel{})

	// GET /api/v4/users/{user_id}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/users/") && !strings.Contains(path[len("/api/v4/users/"):], "/"):
		uid := path[len("/api/v4/users/"):]
		if u, ok := f.Users[uid]; ok {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "store.sql_user.missing", "status_code": 404})

	// GET /api/v4/channels/{channel_id}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/channels/") && !strings.Contains(path[len("/api/v4/channels/"):], "/"):
		chID := path[len("/api/v4/channels/"):]
		if ch, ok := f.Channels[chID]; ok {
			_ = json.NewEncoder(w).Encode(ch)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "store.sql_channel.missing", "status_code": 404})

	// GET /api/v4/files/{file_id}/info
	case r.Method == "GET" && strings.Contains(path, "/files/") && strings.HasSuffix(path, "/info"):
		parts := strings.Split(path, "/")
		if len(parts) >= 5 {
			if fi, ok := f.Files[parts[4]]; ok {
				_ = json.NewEncoder(w).Encode(fi)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "file.missing", "status_code": 404})

	// GET /api/v4/files/{file_id}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/files/"):
		fileID := path[len("/api/v4/files/"):]
		if data, ok := f.FileData[fileID]; ok {
			_, _ = w.Write(data)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "file.missing", "status_code": 404})

	// POST /api/v4/files (upload)
	case r.Method == "POST" && path == "/api/v4/files":
		_ = json.NewEncoder(w).Encode(&model.FileUploadResponse{
			FileInfos: []*model.FileInfo{{Id: "uploaded-file-id", Name: "upload"}},
		})

	// POST /api/v4/posts
	case r.Method == "POST" && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		_ = json.NewEncoder(w).Encode(&post)

	// GET /api/v4/hooks/incoming
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/hooks/incoming"):
		_ = json.NewEncoder(w).Encode(f.Hooks)

	// POST /api/v4/hooks/incoming
	case r.Method == "POST" && strings.HasPrefix(path, "/api/v4/hooks/incoming"):
		var hook model.IncomingWebhook
		_ = json.Unmarshal(body, &hook)
		hook.Id = "created-hook-id"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&hook)

	// POST /api/v4/reactions
	case r.Method == "POST" && path == "/api/v4/reactions":
		var reaction model.Reaction
		_ = json.Unmarshal(body, &reaction)
		_ = json.NewEncoder(w).Encode(&reaction)

	// DELETE /api/v4/users/{uid}/posts/{pid}/reactions/{emoji}
	case r.Method == "DELETE" && strings.Contains(path, "/posts/") && strings.Contains(path, "/reactions/"):
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "not_found", "status_code": 404, "message": path})
	}
}

// newTestClient builds a connected-looking client against a fake server
// without going through Connect (the fake has no WebSocket endpoint).
func newTestClient(serverURL string, handler Handler) *Client {
	api := model.NewAPIv4Client(serverURL)
	api.SetToken("test-token")
	return &Client{
		api:            api,
		serverURL:      serverURL,
		botUserID:      "bot-user-id",
		teamID:         "team-1",
		handler:        handler,
		log:            zerolog.Nop(),
		channelsByID:   exsync.NewMap[string, *model.Channel](),
		channelsByName: exsync.NewMap[string, *model.Channel](),
		usersByID:      exsync.NewMap[string, *model.User](),
		teamChannels:   exsync.NewMap[string, map[string]relay.Channel](),
		queues:         exsync.NewMap[string, *dispatchQueue](),
		stopChan:       make(chan struct{}),
	}
}

func newPostedEvent(post *model.Post, channelID string) *model.WebSocketEvent {
	raw, _ := json.Marshal(post)
	evt := model.NewWebSocketEvent(model.WebsocketEventPosted, "", channelID, "", nil, "")
	return evt.SetData(map[string]any{"post": string(raw)})
}

func TestParsePostedEventEchoPrevention(t *testing.T) {
	t.Parallel()
	c := newTestClient("http://unused", &recordingHandler{})

	tests := []struct {
		name string
		post *model.Post
		skip bool
	}{{
		name: "regular post passes",
		post: &model.Post{Id: "p1", UserId: "u1", ChannelId: "ch1", Message: "hi"},
	}, {
		name: "own post skipped",
		post: &model.Post{Id: "p2", UserId: "bot-user-id", ChannelId: "ch1"},
		skip: true,
	}, {
		name: "system message skipped",
		post: &model.Post{Id: "p3", UserId: "u1", Type: model.PostTypeJoinChannel},
		skip: true,
	}, {
		name: "webhook post skipped",
		post: func() *model.Post {
			p := &model.Post{Id: "p4", UserId: "u1", ChannelId: "ch1"}
			p.AddProp("from_webhook", "true")
			return p
		}(),
		skip: true,
	}}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := c.parsePostedEvent(newPostedEvent(tc.post, "ch1"))
			if err != nil {
				t.Fatalf("parsePostedEvent: %v", err)
			}
			if tc.skip && got != nil {
				t.Errorf("post %s not skipped", tc.post.Id)
			}
			if !tc.skip && got == nil {
				t.Errorf("post %s skipped", tc.post.Id)
			}
		})
	}
}

func TestHandlePostedConvertsAndForwards(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	f.Users["u1"] = &model.User{Id: "u1", Username: "ada", Nickname: "Ada"}
	f.Channels["ch1"] = &model.Channel{Id: "ch1", Name: "general-en", Type: model.ChannelTypeOpen}
	f.Files["f1"] = &model.FileInfo{Id: "f1", Name: "pic.png"}

	h := &recordingHandler{}
	c := newTestClient(f.Server.URL, h)

	post := &model.Post{
		Id: "p1", UserId: "u1", ChannelId: "ch1", RootId: "root-1",
		Message: "hello", FileIds: model.StringArray{"f1"},
	}
	c.handlePosted(newPostedEvent(post, "ch1"))

	msg := h.waitMessages(t, 1)[0]
	if msg.ID != "p1" || msg.GuildID != "team-1" {
		t.Errorf("message ids = %s/%s, want p1/team-1", msg.ID, msg.GuildID)
	}
	if msg.Channel.Name != "general-en" {
		t.Errorf("channel name = %q, want general-en", msg.Channel.Name)
	}
	if msg.Author.DisplayName != "Ada" {
		t.Errorf("author = %q, want nickname Ada", msg.Author.DisplayName)
	}
	if !strings.HasSuffix(msg.Author.AvatarURL, "/api/v4/users/u1/image") {
		t.Errorf("avatar url = %q, want the profile image endpoint", msg.Author.AvatarURL)
	}
	if msg.Thread == nil || msg.Thread.ID != "root-1" {
		t.Errorf("thread = %+v, want root-1", msg.Thread)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Name != "pic.png" {
		t.Errorf("attachments = %+v, want pic.png", msg.Attachments)
	}
}

// gatedHandler blocks message handling for one channel until released.
type gatedHandler struct {
	recordingHandler
	slowChannel string
	gate        chan struct{}
}

func (h *gatedHandler) HandleMessage(ctx context.Context, msg *relay.Message) {
	if msg.Channel.ID == h.slowChannel {
		<-h.gate
	}
	h.recordingHandler.HandleMessage(ctx, msg)
}

func TestSlowChannelDoesNotStallOthers(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	f.Users["u1"] = &model.User{Id: "u1", Username: "ada"}
	f.Channels["ch1"] = &model.Channel{Id: "ch1", Name: "general-en", Type: model.ChannelTypeOpen}
	f.Channels["ch2"] = &model.Channel{Id: "ch2", Name: "general-de", Type: model.ChannelTypeOpen}

	h := &gatedHandler{slowChannel: "ch1", gate: make(chan struct{})}
	c := newTestClient(f.Server.URL, h)

	// The first channel's handler hangs until the gate opens. If
	// handlePosted ran the handler synchronously, this call would never
	// return and the second channel's message would never be seen.
	c.handlePosted(newPostedEvent(&model.Post{Id: "slow", UserId: "u1", ChannelId: "ch1", Message: "a"}, "ch1"))
	c.handlePosted(newPostedEvent(&model.Post{Id: "fast", UserId: "u1", ChannelId: "ch2", Message: "b"}, "ch2"))

	got := h.waitMessages(t, 1)
	if got[0].ID != "fast" {
		t.Fatalf("first handled message = %s, want the unblocked channel's", got[0].ID)
	}

	close(h.gate)
	got = h.waitMessages(t, 2)
	if got[1].ID != "slow" {
		t.Errorf("second handled message = %s, want slow", got[1].ID)
	}
}

func TestSameChannelEventsHandledInOrder(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	f.Users["u1"] = &model.User{Id: "u1", Username: "ada"}
	f.Channels["ch1"] = &model.Channel{Id: "ch1", Name: "general-en", Type: model.ChannelTypeOpen}

	h := &recordingHandler{}
	c := newTestClient(f.Server.URL, h)

	for i := 1; i <= 5; i++ {
		post := &model.Post{Id: fmt.Sprintf("p%d", i), UserId: "u1", ChannelId: "ch1", Message: "hi"}
		c.handlePosted(newPostedEvent(post, "ch1"))
	}

	got := h.waitMessages(t, 5)
	for i, msg := range got {
		if want := fmt.Sprintf("p%d", i+1); msg.ID != want {
			t.Errorf("message %d = %s, want %s", i, msg.ID, want)
		}
	}
}

func TestTextChannelsCachedUntilChannelEvent(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	f.TeamChannels["team-1:bot-user-id"] = []*model.Channel{
		{Id: "ch1", Name: "general-en", Type: model.ChannelTypeOpen},
	}
	c := newTestClient(f.Server.URL, &recordingHandler{})

	for i := 0; i < 3; i++ {
		if _, err := c.TextChannels(context.Background(), "team-1"); err != nil {
			t.Fatalf("TextChannels: %v", err)
		}
	}
	if n := f.CountCalls("/teams/team-1/channels"); n != 1 {
		t.Fatalf("channel list calls = %d, want 1 (cached)", n)
	}

	evt := model.NewWebSocketEvent(model.WebsocketEventChannelCreated, "team-1", "", "", nil, "")
	evt = evt.SetData(map[string]any{"team_id": "team-1"})
	c.handleEvent(evt)

	if _, err := c.TextChannels(context.Background(), "team-1"); err != nil {
		t.Fatalf("TextChannels: %v", err)
	}
	if n := f.CountCalls("/teams/team-1/channels"); n != 2 {
		t.Errorf("channel list calls = %d, want 2 (cache invalidated)", n)
	}
}

func TestTextChannelsFiltersByType(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	f.TeamChannels["team-1:bot-user-id"] = []*model.Channel{
		{Id: "ch1", Name: "general-en", Type: model.ChannelTypeOpen},
		{Id: "ch2", Name: "staff", Type: model.ChannelTypePrivate},
		{Id: "ch3", Name: "dm", Type: model.ChannelTypeDirect},
	}
	c := newTestClient(f.Server.URL, &recordingHandler{})

	got, err := c.TextChannels(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("TextChannels: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("channels = %v, want general-en and staff only", got)
	}
	if got["general-en"].ID != "ch1" {
		t.Errorf("general-en = %+v", got["general-en"])
	}
}

func TestSendUploadsFilesAndPosts(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	c := newTestClient(f.Server.URL, &recordingHandler{})

	id, err := c.Send(context.Background(), relay.SendRequest{
		ChannelID: "ch1",
		ThreadID:  "root-1",
		Text:      "hallo",
		Files:     []relay.File{{Name: "pic.png", Data: []byte("img")}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "created-post-id" {
		t.Errorf("post id = %q, want created-post-id", id)
	}

	call, ok := f.LastCall("/api/v4/posts")
	if !ok {
		t.Fatal("no post created")
	}
	var post model.Post
	if err := json.Unmarshal([]byte(call.Body), &post); err != nil {
		t.Fatalf("unmarshal posted body: %v", err)
	}
	if post.Message != "hallo" || post.RootId != "root-1" {
		t.Errorf("post = %+v", &post)
	}
	if len(post.FileIds) != 1 || post.FileIds[0] != "uploaded-file-id" {
		t.Errorf("file ids = %v, want [uploaded-file-id]", post.FileIds)
	}
}

func TestImpersonatedSendSetsOverrideProps(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	c := newTestClient(f.Server.URL, &recordingHandler{})

	identity, err := c.CreateSendIdentity(context.Background(), "ch1", relay.IdentityName)
	if err != nil {
		t.Fatalf("CreateSendIdentity: %v", err)
	}
	if identity.Name() != relay.IdentityName {
		t.Errorf("identity name = %q", identity.Name())
	}

	_, err = identity.Send(context.Background(), relay.SendRequest{
		ChannelID: "ch1",
		Text:      "hallo",
		Username:  "Ada",
		AvatarURL: "https://cdn/ada.png",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	call, _ := f.LastCall("/api/v4/posts")
	var post model.Post
	if err := json.Unmarshal([]byte(call.Body), &post); err != nil {
		t.Fatalf("unmarshal posted body: %v", err)
	}
	if got := post.GetProp("override_username"); got != "Ada" {
		t.Errorf("override_username = %v, want Ada", got)
	}
	if got := post.GetProp("override_icon_url"); got != "https://cdn/ada.png" {
		t.Errorf("override_icon_url = %v", got)
	}
	if got := post.GetProp("from_webhook"); got != "true" {
		t.Errorf("from_webhook = %v, want true", got)
	}
}

func TestListSendIdentitiesFiltersChannel(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	f.Hooks = []*model.IncomingWebhook{
		{Id: "h1", ChannelId: "ch1", DisplayName: relay.IdentityName},
		{Id: "h2", ChannelId: "ch2", DisplayName: "other"},
	}
	c := newTestClient(f.Server.URL, &recordingHandler{})

	got, err := c.ListSendIdentities(context.Background(), "ch1")
	if err != nil {
		t.Fatalf("ListSendIdentities: %v", err)
	}
	if len(got) != 1 || got[0].Name() != relay.IdentityName {
		t.Errorf("identities = %v, want the ch1 hook only", got)
	}
}

func TestPermissionDeniedMapped(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	f.ForbidEndpoints["/hooks/incoming"] = true
	c := newTestClient(f.Server.URL, &recordingHandler{})

	if _, err := c.ListSendIdentities(context.Background(), "ch1"); !errors.Is(err, relay.ErrPermissionDenied) {
		t.Errorf("list error = %v, want ErrPermissionDenied", err)
	}
	if _, err := c.CreateSendIdentity(context.Background(), "ch1", relay.IdentityName); !errors.Is(err, relay.ErrPermissionDenied) {
		t.Errorf("create error = %v, want ErrPermissionDenied", err)
	}
}

func TestAddReactionConvertsEmoji(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	c := newTestClient(f.Server.URL, &recordingHandler{})

	if err := c.AddReaction(context.Background(), "ch1", "p1", "\U0001f44d"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}
	call, ok := f.LastCall("/api/v4/reactions")
	if !ok {
		t.Fatal("no reaction saved")
	}
	var reaction model.Reaction
	if err := json.Unmarshal([]byte(call.Body), &reaction); err != nil {
		t.Fatalf("unmarshal reaction: %v", err)
	}
	if reaction.EmojiName != "+1" {
		t.Errorf("emoji name = %q, want +1", reaction.EmojiName)
	}
	if reaction.PostId != "p1" || reaction.UserId != "bot-user-id" {
		t.Errorf("reaction = %+v", reaction)
	}
}

func TestReactionEventForwarded(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	c := newTestClient("http://unused", h)

	reaction := &model.Reaction{UserId: "u1", PostId: "p1", EmojiName: "fire"}
	raw, _ := json.Marshal(reaction)
	evt := model.NewWebSocketEvent(model.WebsocketEventReactionAdded, "", "ch1", "", nil, "")
	evt = evt.SetData(map[string]any{"reaction": string(raw)})
	c.handleEvent(evt)

	selfReaction := &model.Reaction{UserId: "bot-user-id", PostId: "p1", EmojiName: "fire"}
	raw, _ = json.Marshal(selfReaction)
	evt = model.NewWebSocketEvent(model.WebsocketEventReactionRemoved, "", "ch1", "", nil, "")
	evt = evt.SetData(map[string]any{"reaction": string(raw)})
	c.handleEvent(evt)

	// Both events share the ch1 queue, so arrival order is preserved.
	reactions := h.waitReactions(t, 2)
	first := reactions[0]
	if first.Emoji != "\U0001f525" || first.Remove || first.FromRelay {
		t.Errorf("first reaction = %+v", first)
	}
	second := reactions[1]
	if !second.Remove || !second.FromRelay {
		t.Errorf("second reaction = %+v, want remove from relay", second)
	}
}

func TestDownloadAttachment(t *testing.T) {
	t.Parallel()
	f := newFakeMM()
	defer f.Close()
	f.FileData["f1"] = []byte("imagedata")
	c := newTestClient(f.Server.URL, &recordingHandler{})

	data, err := c.DownloadAttachment(context.Background(), relay.Attachment{ID: "f1", Name: "pic.png"})
	if err != nil {
		t.Fatalf("DownloadAttachment: %v", err)
	}
	if string(data) != "imagedata" {
		t.Errorf("data = %q, want imagedata", data)
	}
}
