package main

import (
	"strings"
	"testing"
)

func TestModeString(t *testing.T) {
	tests := []struct {
		channel Channel
		modes   string
		args    []string
	}{
		{Channel{}, "+", nil},
		{Channel{InviteOnly: true}, "+i", nil},
		{Channel{TopicRestricted: true}, "+t", nil},
		{Channel{Key: "sekrit"}, "+k", []string{"sekrit"}},
		{Channel{Limit: 10}, "+l", []string{"10"}},
		{
			Channel{InviteOnly: true, TopicRestricted: true, Key: "k1",
				Limit: 5},
			"+itkl",
			[]string{"k1", "5"},
		},
	}

	for _, test := range tests {
		modes, args := test.channel.modeString()
		if modes != test.modes {
			t.Errorf("modeString() modes = %q, wanted %q", modes, test.modes)
		}
		if strings.Join(args, " ") != strings.Join(test.args, " ") {
			t.Errorf("modeString() args = %v, wanted %v", args, test.args)
		}
	}
}

func TestInvitesAreOneShot(t *testing.T) {
	ch := newChannel("#room")

	if ch.isInvited("Alice") {
		t.Fatal("fresh channel has an invite")
	}

	ch.invite("Alice")

	// Invite lookups are caseless.
	if !ch.isInvited("alice") {
		t.Fatal("invite not recorded")
	}

	if !ch.consumeInvite("ALICE") {
		t.Fatal("consumeInvite did not find the invite")
	}

	if ch.consumeInvite("alice") {
		t.Fatal("invite survived consumption")
	}
}

func TestIsFull(t *testing.T) {
	ch := newChannel("#room")
	ch.Members[1] = struct{}{}
	ch.Members[2] = struct{}{}

	if ch.isFull() {
		t.Error("channel with no limit reports full")
	}

	ch.Limit = 2
	if !ch.isFull() {
		t.Error("channel at limit does not report full")
	}

	ch.Limit = 3
	if ch.isFull() {
		t.Error("channel below limit reports full")
	}
}

// Losing the last operator must promote the lowest-id remaining member, and
// losing the last member must delete the channel.
func TestChannelMemberLeftPromotesAndDeletes(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	drainMessages(alice)

	ch := s.findChannel("#room")
	if ch == nil {
		t.Fatal("channel missing")
	}

	if !ch.isOp("alice") || ch.isOp("bob") {
		t.Fatal("unexpected initial operator set")
	}

	s.removeFromChannel(ch, alice)

	if !ch.isOp("bob") {
		t.Error("remaining member was not promoted")
	}

	msgs := drainMessages(bob)
	m, ok := findMessage(msgs, "MODE")
	if !ok {
		t.Fatal("no MODE broadcast after promotion")
	}
	if m.Prefix != s.Config.ServerName {
		t.Errorf("promotion MODE prefix = %q, wanted server name", m.Prefix)
	}
	if len(m.Params) != 3 || m.Params[1] != "+o" || m.Params[2] != "bob" {
		t.Errorf("promotion MODE params = %v", m.Params)
	}

	s.removeFromChannel(ch, bob)

	if s.findChannel("#room") != nil {
		t.Error("empty channel was not deleted")
	}
}
