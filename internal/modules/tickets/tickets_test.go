package tickets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"guildwarden/internal/cases"
	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
	"guildwarden/internal/storage/memstore"
)

type fakeTimer struct {
	fn func()
}

func (t *fakeTimer) Stop() bool { return true }

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	f.delays = append(f.delays, d)
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	pending := append([]*fakeTimer{}, f.timers...)
	f.timers = nil
	f.mu.Unlock()
	for _, timer := range pending {
		timer.fn()
	}
}

type fakeChannels struct {
	created []ChannelRequest
	deleted []string
}

func (f *fakeChannels) CreateTicketChannel(_ context.Context, req ChannelRequest) (string, error) {
	f.created = append(f.created, req)
	return "chan-" + req.OwnerID, nil
}

func (f *fakeChannels) DeleteChannel(_ context.Context, channelID string) error {
	f.deleted = append(f.deleted, channelID)
	return nil
}

func setup(t *testing.T, category string) (*Service, *memstore.Store, *fakeChannels, *fakeClock) {
	t.Helper()
	store := memstore.New()
	cfg := storage.DefaultServerConfig("g1", "Guild")
	cfg.TicketCategoryID = category
	cfg.ModeratorRoleIDs = []string{"mods"}
	if _, err := store.UpsertServerConfig(context.Background(), cfg); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	channels := &fakeChannels{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	service := New(store, store, cases.NewLedger(store, zap.NewNop(), nil), channels, 10*time.Second, zap.NewNop())
	service.WithClock(clock)
	return service, store, channels, clock
}

func TestOpenAndCloseTicket(t *testing.T) {
	service, store, channels, clock := setup(t, "cat")
	ctx := context.Background()

	ticket, err := service.Open(ctx, "g1", "u1", "Ada Lovelace")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if ticket.ChannelID != "chan-u1" || ticket.Subject != DefaultSubject {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if req := channels.created[0]; req.Name != "ticket-ada-lovelace" || req.CategoryID != "cat" || len(req.StaffRoleIDs) != 1 {
		t.Fatalf("unexpected channel request %+v", req)
	}

	if _, err := service.Open(ctx, "g1", "u1", "Ada"); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}

	closed, err := service.Close(ctx, "chan-u1", "mod")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != storage.TicketClosed || closed.ClosedAt == nil {
		t.Fatalf("unexpected closed ticket %+v", closed)
	}
	if len(channels.deleted) != 0 {
		t.Fatalf("channel deleted before delay")
	}
	if clock.delays[0] != 10*time.Second {
		t.Fatalf("unexpected delay %s", clock.delays[0])
	}
	clock.Advance(10 * time.Second)
	if len(channels.deleted) != 1 || channels.deleted[0] != "chan-u1" {
		t.Fatalf("expected channel deleted, got %v", channels.deleted)
	}

	list, _ := store.ListCases(ctx, "g1", 10)
	if len(list) != 1 || list[0].Action != moderation.ActionTicketClose || list[0].ModeratorUserID != "mod" {
		t.Fatalf("expected ticket_close case, got %+v", list)
	}

	if _, err := service.Close(ctx, "chan-u1", "mod"); !errors.Is(err, ErrNotTicket) {
		t.Fatalf("expected ErrNotTicket on second close, got %v", err)
	}
}

func TestOpenRequiresCategory(t *testing.T) {
	service, _, _, _ := setup(t, "")
	if _, err := service.Open(context.Background(), "g1", "u1", "ada"); !errors.Is(err, ErrNoCategory) {
		t.Fatalf("expected ErrNoCategory, got %v", err)
	}
	if _, err := service.Open(context.Background(), "unknown", "u1", "ada"); !errors.Is(err, ErrNoCategory) {
		t.Fatalf("expected ErrNoCategory for unconfigured guild, got %v", err)
	}
}

func TestCloseUnknownChannel(t *testing.T) {
	service, _, _, _ := setup(t, "cat")
	if _, err := service.Close(context.Background(), "general", "mod"); !errors.Is(err, ErrNotTicket) {
		t.Fatalf("expected ErrNotTicket, got %v", err)
	}
}

func TestChannelName(t *testing.T) {
	names := map[string]string{
		"Ada":        "ticket-ada",
		"John Smith": "ticket-john-smith",
		"!!!":        "ticket-user",
		"x_y-z.9":    "ticket-x_y-z9",
	}
	for input, want := range names {
		if got := ChannelName(input); got != want {
			t.Fatalf("%q: expected %q, got %q", input, want, got)
		}
	}
}

func TestChannelNameTruncatesByRune(t *testing.T) {
	name := ChannelName(strings.Repeat("é", 120))
	if !utf8.ValidString(name) {
		t.Fatalf("expected valid UTF-8, got %q", name)
	}
	if got := utf8.RuneCountInString(name); got != 100 {
		t.Fatalf("expected 100 runes, got %d", got)
	}
	if !strings.HasPrefix(name, "ticket-é") {
		t.Fatalf("unexpected name %q", name)
	}
}
