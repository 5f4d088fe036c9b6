package chatsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/strandapp/strand/changefeed"
	"github.com/strandapp/strand/chat"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store/memstore"
	"github.com/stretchr/testify/require"
)

// gappyPublisher can be told to drop message events, simulating the window
// between unsubscribe and resubscribe where feed events are lost.
type gappyPublisher struct {
	bus *changefeed.Bus

	mu           sync.Mutex
	dropMessages bool
}

func (p *gappyPublisher) Publish(event model.ChangeEvent) error {
	p.mu.Lock()
	drop := p.dropMessages && event.Table == model.TableMessages
	p.mu.Unlock()
	if drop {
		return nil
	}
	return p.bus.Publish(event)
}

func (p *gappyPublisher) setDrop(drop bool) {
	p.mu.Lock()
	p.dropMessages = drop
	p.mu.Unlock()
}

type fixture struct {
	bus     *changefeed.Bus
	gappy   *gappyPublisher
	db      *memstore.MemStore
	service *chat.Service
	syncer  *Syncer
	cancel  context.CancelFunc
}

func newFixture(t *testing.T, userId string) *fixture {
	t.Helper()

	bus := changefeed.NewBus()
	gappy := &gappyPublisher{bus: bus}
	db := memstore.New(gappy)
	ctx := context.Background()
	for _, u := range []model.User{
		{Id: "1", Username: "alice"},
		{Id: "2", Username: "bob"},
		{Id: "3", Username: "carol"},
	} {
		user := u
		require.Nil(t, db.CreateUser(ctx, &user))
	}

	service := chat.NewService(db, db)
	syncer := NewSyncer(userId, bus, db, db, service)

	runCtx, cancel := context.WithCancel(ctx)
	go syncer.RunModule(runCtx)

	t.Cleanup(func() {
		cancel()
		bus.Close()
	})
	return &fixture{bus: bus, gappy: gappy, db: db, service: service, syncer: syncer, cancel: cancel}
}

func snapshotChat(f *fixture, chatId string) *model.Chat {
	for _, c := range f.syncer.Snapshot(context.Background()) {
		if c.Id == chatId {
			return c
		}
	}
	return nil
}

func TestSyncerIngestsNewChatFromMembershipEvent(t *testing.T) {
	f := newFixture(t, "2")
	ctx := context.Background()

	message, err := f.service.SendMessage(ctx, "1", []string{"1", "2"}, "hi", "", model.MediaKindText)
	require.Nil(t, err)

	require.Eventually(t, func() bool {
		c := snapshotChat(f, message.ChatID)
		return c != nil && len(c.Messages) == 1
	}, 5*time.Second, 10*time.Millisecond)

	c := snapshotChat(f, message.ChatID)
	require.Equal(t, "1_2", c.DiscoveryKey)
	require.Equal(t, 1, chat.UnreadCount(c, "2"))
}

func TestSyncerAppendsRealtimeMessages(t *testing.T) {
	f := newFixture(t, "2")
	ctx := context.Background()

	first, err := f.service.SendMessage(ctx, "1", []string{"1", "2"}, "hi", "", model.MediaKindText)
	require.Nil(t, err)
	require.Eventually(t, func() bool {
		return snapshotChat(f, first.ChatID) != nil
	}, 5*time.Second, 10*time.Millisecond)

	second, err := f.service.SendMessageToChat(ctx, "1", first.ChatID, "how are you", "", model.MediaKindText)
	require.Nil(t, err)

	require.Eventually(t, func() bool {
		c := snapshotChat(f, first.ChatID)
		return c != nil && len(c.Messages) == 2
	}, 5*time.Second, 10*time.Millisecond)

	c := snapshotChat(f, first.ChatID)
	require.Equal(t, second.Id, c.Messages[1].Id)
	require.Equal(t, 2, chat.UnreadCount(c, "2"))
}

func TestSyncerMarkChatReadUpdatesUnreadCount(t *testing.T) {
	f := newFixture(t, "2")
	ctx := context.Background()

	message, err := f.service.SendMessage(ctx, "1", []string{"1", "2"}, "hi", "", model.MediaKindText)
	require.Nil(t, err)
	require.Eventually(t, func() bool {
		return snapshotChat(f, message.ChatID) != nil
	}, 5*time.Second, 10*time.Millisecond)

	created, err := f.syncer.MarkChatRead(ctx, message.ChatID)
	require.Nil(t, err)
	require.Equal(t, 1, len(created))

	require.Eventually(t, func() bool {
		c := snapshotChat(f, message.ChatID)
		return c != nil && chat.UnreadCount(c, "2") == 0
	}, 5*time.Second, 10*time.Millisecond)
}

// A message committed while no message stream is attached must be recovered
// by the resync step of the next subscription refresh.
func TestSyncerResyncRecoversDroppedMessages(t *testing.T) {
	f := newFixture(t, "2")
	ctx := context.Background()

	first, err := f.service.SendMessage(ctx, "1", []string{"1", "2"}, "hi", "", model.MediaKindText)
	require.Nil(t, err)
	require.Eventually(t, func() bool {
		c := snapshotChat(f, first.ChatID)
		return c != nil && len(c.Messages) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Drop the realtime event for the next message: it reaches the store but
	// never the feed.
	f.gappy.setDrop(true)
	dropped, err := f.service.SendMessageToChat(ctx, "1", first.ChatID, "lost in the gap", "", model.MediaKindText)
	require.Nil(t, err)
	f.gappy.setDrop(false)

	// A new chat membership triggers the unsubscribe -> resubscribe -> resync
	// cycle, which must fold the dropped message back in.
	_, err = f.service.SendMessage(ctx, "3", []string{"2", "3"}, "hello from carol", "", model.MediaKindText)
	require.Nil(t, err)

	require.Eventually(t, func() bool {
		c := snapshotChat(f, first.ChatID)
		return c != nil && len(c.Messages) == 2
	}, 5*time.Second, 10*time.Millisecond)

	c := snapshotChat(f, first.ChatID)
	require.Equal(t, dropped.Id, c.Messages[1].Id)
}

func TestSnapshotIsDetached(t *testing.T) {
	f := newFixture(t, "2")
	ctx := context.Background()

	message, err := f.service.SendMessage(ctx, "1", []string{"1", "2"}, "hi", "", model.MediaKindText)
	require.Nil(t, err)
	require.Eventually(t, func() bool {
		return snapshotChat(f, message.ChatID) != nil
	}, 5*time.Second, 10*time.Millisecond)

	first := snapshotChat(f, message.ChatID)
	first.Messages[0].Text = "mutated by caller"

	second := snapshotChat(f, message.ChatID)
	require.Equal(t, "hi", second.Messages[0].Text)
}

// A resynced older message can arrive after a newer one already delivered by
// the fresh subscription; the fold must keep messages oldest first.
func TestFoldMessageKeepsChronologicalOrder(t *testing.T) {
	s := &Syncer{}
	base := time.Now().Add(-time.Hour)
	m0 := &model.Message{Id: "m0", ChatID: "c1", CreatedAt: base}
	m1 := &model.Message{Id: "m1", ChatID: "c1", CreatedAt: base.Add(time.Minute)}
	m2 := &model.Message{Id: "m2", ChatID: "c1", CreatedAt: base.Add(2 * time.Minute)}

	c := &model.Chat{Id: "c1", Messages: []*model.Message{m0}}
	state := &syncState{
		chats:    []*model.Chat{c},
		byId:     map[string]*model.Chat{"c1": c},
		seenMsgs: map[string]bool{"m0": true},
		lastSeen: m0.CreatedAt,
	}

	ctx := context.Background()
	s.handle(ctx, state, messageInserted{message: m2})
	s.handle(ctx, state, messagesResynced{messages: []*model.Message{m1, m2}})

	require.Equal(t, 3, len(c.Messages))
	require.Equal(t, "m0", c.Messages[0].Id)
	require.Equal(t, "m1", c.Messages[1].Id)
	require.Equal(t, "m2", c.Messages[2].Id)
	require.Equal(t, m2.CreatedAt, state.lastSeen)
}

func TestSnapshotKeepsTimestamps(t *testing.T) {
	f := newFixture(t, "2")
	ctx := context.Background()

	message, err := f.service.SendMessage(ctx, "1", []string{"1", "2"}, "hi", "", model.MediaKindText)
	require.Nil(t, err)
	require.Eventually(t, func() bool {
		return snapshotChat(f, message.ChatID) != nil
	}, 5*time.Second, 10*time.Millisecond)

	c := snapshotChat(f, message.ChatID)
	require.False(t, c.CreatedAt.IsZero())
	require.False(t, c.Messages[0].CreatedAt.IsZero())
	require.Equal(t, message.CreatedAt.Unix(), c.Messages[0].CreatedAt.Unix())
}
