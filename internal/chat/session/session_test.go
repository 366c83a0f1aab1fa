package session_test

import (
	"sync"
	"testing"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/chat/session"
)

func TestRegistry_ScopeCreatesOnce(t *testing.T) {
	reg := session.NewRegistry()

	a := reg.Scope(42)
	b := reg.Scope(42)

	if a != b {
		t.Fatal("expected same session for same chat")
	}
	if a.ChatID() != 42 {
		t.Errorf("expected chat 42, got %d", a.ChatID())
	}
	if _, ok := reg.Lookup(7); ok {
		t.Error("lookup must not create sessions")
	}
}

func TestRegistry_DropForgetsInterfaces(t *testing.T) {
	reg := session.NewRegistry()
	s := reg.Scope(1)
	s.SaveInterface(&chatdomain.Interface{Name: "interface"})

	reg.Drop(1)

	if _, ok := reg.Scope(1).Interface("interface"); ok {
		t.Fatal("expected interface to be gone after drop")
	}
}

func TestSession_InterfaceIsCopied(t *testing.T) {
	s := session.NewRegistry().Scope(1)
	iface := &chatdomain.Interface{Name: "interface", Text: "a"}
	s.SaveInterface(iface)

	iface.Text = "mutated"
	got, ok := s.Interface("interface")
	if !ok {
		t.Fatal("expected interface")
	}
	if got.Text != "a" {
		t.Errorf("expected stored copy to be isolated, got %q", got.Text)
	}

	s.ForgetInterface("interface")
	if _, ok := s.Interface("interface"); ok {
		t.Error("expected interface to be forgotten")
	}
}

func TestSession_ConcurrentAccess(t *testing.T) {
	s := session.NewRegistry().Scope(1)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SaveInterface(&chatdomain.Interface{Name: "report", ReplyTo: i})
			s.SetState("MAIN")
			_, _ = s.Interface("report")
		}(i)
	}
	wg.Wait()

	if _, ok := s.Interface("report"); !ok {
		t.Fatal("expected last write to be stored")
	}
}
