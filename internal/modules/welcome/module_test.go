package welcome

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"guildwarden/internal/storage"
	"guildwarden/internal/storage/memstore"
)

type fakeActions struct {
	roles     []string
	announces []string
	kinds     []Kind
	roleErr   error
}

func (f *fakeActions) AddRole(_ context.Context, _, _, roleID string) error {
	if f.roleErr != nil {
		return f.roleErr
	}
	f.roles = append(f.roles, roleID)
	return nil
}

func (f *fakeActions) Announce(_ context.Context, _ string, kind Kind, content string) error {
	f.kinds = append(f.kinds, kind)
	f.announces = append(f.announces, content)
	return nil
}

func TestRender(t *testing.T) {
	got := Render("Welcome {user} ({username}) to {server}, member #{membercount}!", Guild{Name: "Cafe", MemberCount: 42}, Member{UserID: "1", Username: "ada"})
	want := "Welcome <@1> (ada) to Cafe, member #42!"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestJoinAndLeave(t *testing.T) {
	store := memstore.New()
	cfg := storage.DefaultServerConfig("g1", "Cafe")
	cfg.WelcomeChannelID = "welcome"
	cfg.AutoRoleID = "newbie"
	if _, err := store.UpsertServerConfig(context.Background(), cfg); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	actions := &fakeActions{roleErr: errors.New("missing access")}
	module := New(store, actions, zap.NewNop())
	guild := Guild{ID: "g1", Name: "Cafe", MemberCount: 3}
	member := Member{UserID: "u1", Username: "ada"}

	module.HandleJoin(context.Background(), guild, member)
	if len(actions.announces) != 1 || actions.kinds[0] != Join {
		t.Fatalf("expected welcome despite role failure, got %v", actions.announces)
	}

	actions.roleErr = nil
	module.HandleJoin(context.Background(), guild, member)
	if len(actions.roles) != 1 || actions.roles[0] != "newbie" {
		t.Fatalf("expected auto role, got %v", actions.roles)
	}

	module.HandleLeave(context.Background(), guild, member)
	if last := actions.announces[len(actions.announces)-1]; last != "ada has left Cafe." {
		t.Fatalf("unexpected goodbye %q", last)
	}
}

func TestUnconfiguredGuildIsIgnored(t *testing.T) {
	actions := &fakeActions{}
	module := New(memstore.New(), actions, zap.NewNop())
	module.HandleJoin(context.Background(), Guild{ID: "g1"}, Member{UserID: "u1"})
	module.HandleLeave(context.Background(), Guild{ID: "g1"}, Member{UserID: "u1"})
	if len(actions.announces) != 0 || len(actions.roles) != 0 {
		t.Fatalf("expected no actions")
	}
}
