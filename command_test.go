package main

import (
	"testing"

	"github.com/horgh/irc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationFlow(t *testing.T) {
	s := newTestServer()
	c := newTestClient(t, s, 1)

	// Nothing before an accepted PASS.
	dispatch(s, c, irc.Message{Command: "NICK", Params: []string{"alice"}})
	msgs := drainMessages(c)
	_, ok := findMessage(msgs, "451")
	assert.True(t, ok, "NICK before PASS must 451")

	dispatch(s, c, irc.Message{Command: "PASS", Params: []string{"wrong"}})
	msgs = drainMessages(c)
	_, ok = findMessage(msgs, "464")
	assert.True(t, ok, "wrong password must 464")
	assert.False(t, c.PassOK)

	dispatch(s, c, irc.Message{Command: "PASS", Params: []string{s.Password}})
	assert.True(t, c.PassOK)

	// USER before NICK is still too early.
	dispatch(s, c, irc.Message{Command: "USER",
		Params: []string{"alice", "0", "*", "Alice"}})
	msgs = drainMessages(c)
	_, ok = findMessage(msgs, "451")
	assert.True(t, ok, "USER before NICK must 451")

	dispatch(s, c, irc.Message{Command: "NICK", Params: []string{"alice"}})
	dispatch(s, c, irc.Message{Command: "USER",
		Params: []string{"alice", "0", "*", "Alice"}})

	msgs = drainMessages(c)
	welcome, ok := findMessage(msgs, "001")
	require.True(t, ok, "no 001 after full registration")
	require.Len(t, welcome.Params, 2)
	assert.Equal(t, "alice", welcome.Params[0])
	assert.Equal(t, "Welcome to ircserv alice", welcome.Params[1])
	assert.True(t, c.Registered)

	// Registration is once only.
	dispatch(s, c, irc.Message{Command: "USER",
		Params: []string{"alice", "0", "*", "Alice"}})
	msgs = drainMessages(c)
	_, ok = findMessage(msgs, "462")
	assert.True(t, ok, "re-USER must 462")

	dispatch(s, c, irc.Message{Command: "PASS", Params: []string{s.Password}})
	msgs = drainMessages(c)
	_, ok = findMessage(msgs, "462")
	assert.True(t, ok, "re-PASS must 462")
}

func TestCommandsRequireRegistration(t *testing.T) {
	s := newTestServer()
	c := newTestClient(t, s, 1)

	dispatch(s, c, irc.Message{Command: "PRIVMSG",
		Params: []string{"#room", "hi"}})
	msgs := drainMessages(c)
	_, ok := findMessage(msgs, "451")
	assert.True(t, ok)
}

func TestNickErrors(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	dispatch(s, alice, irc.Message{Command: "NICK"})
	msgs := drainMessages(alice)
	_, ok := findMessage(msgs, "431")
	assert.True(t, ok, "NICK without params must 431")

	dispatch(s, alice, irc.Message{Command: "NICK", Params: []string{"no way"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "432")
	assert.True(t, ok, "invalid nick must 432")

	// Collision check is caseless and rejects another client's nick.
	dispatch(s, alice, irc.Message{Command: "NICK", Params: []string{"BOB"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "433")
	assert.True(t, ok, "taken nick must 433")
	assert.Equal(t, "alice", alice.DisplayNick)

	// Changing case of your own nick is allowed.
	dispatch(s, alice, irc.Message{Command: "NICK", Params: []string{"Alice"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "433")
	assert.False(t, ok)
	assert.Equal(t, "Alice", alice.DisplayNick)
}

func TestNickRenameCarriesStateAndInforms(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	drainMessages(alice)

	ch := s.findChannel("#room")
	require.NotNil(t, ch)
	require.True(t, ch.isOp("alice"))

	dispatch(s, alice, irc.Message{Command: "NICK", Params: []string{"alicia"}})

	assert.Equal(t, "alicia", alice.DisplayNick)
	assert.True(t, ch.isOp("alicia"), "operator status must follow the rename")
	assert.False(t, ch.isOp("alice"))

	_, exists := s.Nicks["alice"]
	assert.False(t, exists, "old nick must be freed")
	assert.Equal(t, alice.ID, s.Nicks["alicia"])

	msgs := drainMessages(bob)
	m, ok := findMessage(msgs, "NICK")
	require.True(t, ok, "channel peer must see the rename")
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, []string{"alicia"}, m.Params)
}

func TestJoinCreatesChannelWithBot(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	registerClient(t, s, alice, "alice")

	dispatch(s, alice, irc.Message{Command: "JOIN", Params: []string{"#room"}})
	msgs := drainMessages(alice)

	join, ok := findMessage(msgs, "JOIN")
	require.True(t, ok)
	assert.Equal(t, "alice", join.Prefix)
	assert.Equal(t, []string{"#room"}, join.Params)

	names, ok := findMessage(msgs, "353")
	require.True(t, ok)
	require.Len(t, names.Params, 4)
	assert.Equal(t, "=", names.Params[1])
	assert.Equal(t, "#room", names.Params[2])
	assert.Equal(t, "@alice", names.Params[3], "creator must be operator")

	_, ok = findMessage(msgs, "366")
	assert.True(t, ok)

	// The bot announces itself in brand-new channels.
	greeting, ok := findMessage(msgs, "PRIVMSG")
	require.True(t, ok, "no bot greeting on channel creation")
	assert.Equal(t, s.Bot.Nick, greeting.Prefix)

	// Joining again is a no-op.
	dispatch(s, alice, irc.Message{Command: "JOIN", Params: []string{"#room"}})
	assert.Empty(t, drainMessages(alice))

	// Invalid channel names are rejected.
	dispatch(s, alice, irc.Message{Command: "JOIN", Params: []string{"room"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "403")
	assert.True(t, ok)
}

func TestJoinSecondMemberSeesExistingState(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	dispatch(s, alice, irc.Message{Command: "TOPIC",
		Params: []string{"#room", "news"}})
	drainMessages(alice)

	dispatch(s, bob, irc.Message{Command: "JOIN", Params: []string{"#room"}})
	msgs := drainMessages(bob)

	topic, ok := findMessage(msgs, "332")
	require.True(t, ok, "joiner must see the channel topic")
	assert.Equal(t, "news", topic.Params[2])

	names, ok := findMessage(msgs, "353")
	require.True(t, ok)
	assert.Equal(t, "@alice bob", names.Params[3])

	// Existing members see the join too.
	msgs = drainMessages(alice)
	join, ok := findMessage(msgs, "JOIN")
	require.True(t, ok)
	assert.Equal(t, "bob", join.Prefix)
}

func TestJoinAdmissionChecks(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#priv")

	// +k: wrong or missing key is refused.
	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#priv", "+k", "sekrit"}})
	drainMessages(alice)

	dispatch(s, bob, irc.Message{Command: "JOIN", Params: []string{"#priv"}})
	msgs := drainMessages(bob)
	_, ok := findMessage(msgs, "475")
	assert.True(t, ok, "missing key must 475")

	dispatch(s, bob, irc.Message{Command: "JOIN",
		Params: []string{"#priv", "nope"}})
	msgs = drainMessages(bob)
	_, ok = findMessage(msgs, "475")
	assert.True(t, ok, "wrong key must 475")

	// +i: invite required, and invites are one-shot.
	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#priv", "+i"}})
	drainMessages(alice)

	dispatch(s, bob, irc.Message{Command: "JOIN",
		Params: []string{"#priv", "sekrit"}})
	msgs = drainMessages(bob)
	_, ok = findMessage(msgs, "473")
	assert.True(t, ok, "uninvited join must 473")

	dispatch(s, alice, irc.Message{Command: "INVITE",
		Params: []string{"bob", "#priv"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "341")
	assert.True(t, ok, "inviter must get 341")

	msgs = drainMessages(bob)
	inv, ok := findMessage(msgs, "INVITE")
	require.True(t, ok)
	assert.Equal(t, "alice", inv.Prefix)
	assert.Equal(t, []string{"bob", "#priv"}, inv.Params)

	joinChannel(t, s, bob, "#priv")

	dispatch(s, bob, irc.Message{Command: "PART", Params: []string{"#priv"}})
	drainMessages(bob)
	drainMessages(alice)

	dispatch(s, bob, irc.Message{Command: "JOIN",
		Params: []string{"#priv", "sekrit"}})
	msgs = drainMessages(bob)
	_, ok = findMessage(msgs, "473")
	assert.True(t, ok, "invite must not survive a rejoin")

	// +l: a full channel refuses new members.
	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#priv", "-ik"}})
	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#priv", "+l", "1"}})
	drainMessages(alice)

	dispatch(s, bob, irc.Message{Command: "JOIN", Params: []string{"#priv"}})
	msgs = drainMessages(bob)
	_, ok = findMessage(msgs, "471")
	assert.True(t, ok, "full channel must 471")
}

func TestPrivmsgFanout(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	carol := newTestClient(t, s, 3)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")
	registerClient(t, s, carol, "carol")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	joinChannel(t, s, carol, "#other")
	drainMessages(alice)

	dispatch(s, alice, irc.Message{Command: "PRIVMSG",
		Params: []string{"#room", "hi"}})

	msgs := drainMessages(bob)
	m, ok := findMessage(msgs, "PRIVMSG")
	require.True(t, ok, "channel member must receive the message")
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, []string{"#room", "hi"}, m.Params)

	// The sender does not hear its own message, and other channels see
	// nothing.
	assert.Empty(t, drainMessages(alice))
	assert.Empty(t, drainMessages(carol))

	// Direct message to a nick.
	dispatch(s, alice, irc.Message{Command: "PRIVMSG",
		Params: []string{"carol", "psst"}})
	msgs = drainMessages(carol)
	m, ok = findMessage(msgs, "PRIVMSG")
	require.True(t, ok)
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, []string{"carol", "psst"}, m.Params)
}

func TestPrivmsgErrors(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	carol := newTestClient(t, s, 3)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, carol, "carol")

	joinChannel(t, s, carol, "#other")

	dispatch(s, alice, irc.Message{Command: "PRIVMSG"})
	msgs := drainMessages(alice)
	_, ok := findMessage(msgs, "411")
	assert.True(t, ok, "no recipient must 411")

	dispatch(s, alice, irc.Message{Command: "PRIVMSG",
		Params: []string{"#other"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "412")
	assert.True(t, ok, "no text must 412")

	dispatch(s, alice, irc.Message{Command: "PRIVMSG",
		Params: []string{"#nowhere", "hi"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "403")
	assert.True(t, ok, "unknown channel must 403")

	dispatch(s, alice, irc.Message{Command: "PRIVMSG",
		Params: []string{"#other", "hi"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "442")
	assert.True(t, ok, "message to a channel you are not on must 442")

	dispatch(s, alice, irc.Message{Command: "PRIVMSG",
		Params: []string{"ghost", "hi"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "401")
	assert.True(t, ok, "unknown nick must 401")
}

func TestTopic(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	drainMessages(alice)

	// Query with no topic set.
	dispatch(s, alice, irc.Message{Command: "TOPIC", Params: []string{"#room"}})
	msgs := drainMessages(alice)
	_, ok := findMessage(msgs, "331")
	assert.True(t, ok)

	// Setting broadcasts to everyone.
	dispatch(s, alice, irc.Message{Command: "TOPIC",
		Params: []string{"#room", "launch friday"}})
	msgs = drainMessages(bob)
	m, ok := findMessage(msgs, "TOPIC")
	require.True(t, ok)
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, []string{"#room", "launch friday"}, m.Params)
	drainMessages(alice)

	// Query returns the topic.
	dispatch(s, bob, irc.Message{Command: "TOPIC", Params: []string{"#room"}})
	msgs = drainMessages(bob)
	m, ok = findMessage(msgs, "332")
	require.True(t, ok)
	assert.Equal(t, "launch friday", m.Params[2])

	// +t restricts setting to operators; querying stays open.
	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#room", "+t"}})
	drainMessages(alice)
	drainMessages(bob)

	dispatch(s, bob, irc.Message{Command: "TOPIC",
		Params: []string{"#room", "bob's topic"}})
	msgs = drainMessages(bob)
	_, ok = findMessage(msgs, "482")
	assert.True(t, ok, "non-op set under +t must 482")

	dispatch(s, bob, irc.Message{Command: "TOPIC", Params: []string{"#room"}})
	msgs = drainMessages(bob)
	_, ok = findMessage(msgs, "332")
	assert.True(t, ok)
}

func TestModeQueryAndSet(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	drainMessages(alice)

	// Any member can query.
	dispatch(s, bob, irc.Message{Command: "MODE", Params: []string{"#room"}})
	msgs := drainMessages(bob)
	m, ok := findMessage(msgs, "324")
	require.True(t, ok)
	assert.Equal(t, []string{"bob", "#room", "+"}, m.Params)

	// Only operators can set.
	dispatch(s, bob, irc.Message{Command: "MODE",
		Params: []string{"#room", "+i"}})
	msgs = drainMessages(bob)
	_, ok = findMessage(msgs, "482")
	assert.True(t, ok)

	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#room", "+itk", "sekrit"}})

	ch := s.findChannel("#room")
	require.NotNil(t, ch)
	assert.True(t, ch.InviteOnly)
	assert.True(t, ch.TopicRestricted)
	assert.Equal(t, "sekrit", ch.Key)

	msgs = drainMessages(bob)
	m, ok = findMessage(msgs, "MODE")
	require.True(t, ok, "mode change must broadcast")
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, []string{"#room", "+itk", "sekrit"}, m.Params)

	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#room", "-ik"}})
	assert.False(t, ch.InviteOnly)
	assert.Empty(t, ch.Key)

	msgs = drainMessages(bob)
	m, ok = findMessage(msgs, "MODE")
	require.True(t, ok)
	assert.Equal(t, []string{"#room", "-ik"}, m.Params)

	// +o by nick.
	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#room", "+o", "bob"}})
	assert.True(t, ch.isOp("bob"))

	msgs = drainMessages(bob)
	m, ok = findMessage(msgs, "MODE")
	require.True(t, ok)
	assert.Equal(t, []string{"#room", "+o", "bob"}, m.Params)
}

func TestModeLimitRules(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	drainMessages(alice)

	ch := s.findChannel("#room")
	require.NotNil(t, ch)

	// A limit below the member count is refused, never applied, and nobody
	// is evicted.
	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#room", "+l", "1"}})
	msgs := drainMessages(alice)
	m, ok := findMessage(msgs, "471")
	require.True(t, ok)
	assert.Equal(t, "Channel limit is below member count", m.Params[2])
	assert.Equal(t, 0, ch.Limit)
	assert.Len(t, ch.Members, 2)

	// Nothing was applied, so nothing broadcasts.
	msgs = drainMessages(bob)
	_, ok = findMessage(msgs, "MODE")
	assert.False(t, ok)

	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#room", "+l", "5"}})
	assert.Equal(t, 5, ch.Limit)
	drainMessages(alice)
	drainMessages(bob)

	// A non-numeric limit aborts with 461.
	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#room", "+l", "lots"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "461")
	assert.True(t, ok)
	assert.Equal(t, 5, ch.Limit)

	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#room", "-l"}})
	assert.Equal(t, 0, ch.Limit)
}

// Flags applied before an aborting flag still take effect and broadcast.
func TestModePartialApplication(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	drainMessages(alice)

	// +i applies, then +k aborts for want of a key.
	dispatch(s, alice, irc.Message{Command: "MODE",
		Params: []string{"#room", "+ik"}})

	ch := s.findChannel("#room")
	require.NotNil(t, ch)
	assert.True(t, ch.InviteOnly)
	assert.Empty(t, ch.Key)

	msgs := drainMessages(alice)
	_, ok := findMessage(msgs, "461")
	assert.True(t, ok)

	msgs = drainMessages(bob)
	m, ok := findMessage(msgs, "MODE")
	require.True(t, ok, "partial change must still broadcast")
	assert.Equal(t, []string{"#room", "+i"}, m.Params)
}

func TestKick(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	drainMessages(alice)

	// Non-operators cannot kick.
	dispatch(s, bob, irc.Message{Command: "KICK",
		Params: []string{"#room", "alice"}})
	msgs := drainMessages(bob)
	_, ok := findMessage(msgs, "482")
	assert.True(t, ok)

	// Victim must be on the channel.
	dispatch(s, alice, irc.Message{Command: "KICK",
		Params: []string{"#room", "ghost"}})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "441")
	assert.True(t, ok)

	// No kicking yourself.
	dispatch(s, alice, irc.Message{Command: "KICK",
		Params: []string{"#room", "alice"}})
	msgs = drainMessages(alice)
	m, ok := findMessage(msgs, "482")
	require.True(t, ok)
	assert.Equal(t, "You cannot kick yourself", m.Params[2])

	// A real kick reaches everyone, including the victim.
	dispatch(s, alice, irc.Message{Command: "KICK",
		Params: []string{"#room", "bob", "flooding"}})

	msgs = drainMessages(bob)
	m, ok = findMessage(msgs, "KICK")
	require.True(t, ok)
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, []string{"#room", "bob", "flooding"}, m.Params)

	ch := s.findChannel("#room")
	require.NotNil(t, ch)
	assert.False(t, ch.hasMember(bob.ID))
	assert.Empty(t, bob.Channels)
}

func TestPartPromotesReplacementOp(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	drainMessages(alice)

	dispatch(s, bob, irc.Message{Command: "PART", Params: []string{"#nowhere"}})
	msgs := drainMessages(bob)
	_, ok := findMessage(msgs, "442")
	assert.True(t, ok)

	dispatch(s, alice, irc.Message{Command: "PART",
		Params: []string{"#room", "gone fishing"}})

	msgs = drainMessages(bob)
	part, ok := findMessage(msgs, "PART")
	require.True(t, ok)
	assert.Equal(t, "alice", part.Prefix)
	assert.Equal(t, []string{"#room", "gone fishing"}, part.Params)

	// The last operator left, so bob gets promoted.
	mode, ok := findMessage(msgs, "MODE")
	require.True(t, ok)
	assert.Equal(t, s.Config.ServerName, mode.Prefix)
	assert.Equal(t, []string{"#room", "+o", "bob"}, mode.Params)

	ch := s.findChannel("#room")
	require.NotNil(t, ch)
	assert.True(t, ch.isOp("bob"))
}

func TestQuit(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	bob := newTestClient(t, s, 2)
	registerClient(t, s, alice, "alice")
	registerClient(t, s, bob, "bob")

	joinChannel(t, s, alice, "#room")
	joinChannel(t, s, bob, "#room")
	drainMessages(alice)

	dispatch(s, alice, irc.Message{Command: "QUIT", Params: []string{"bye"}})

	msgs := drainMessages(bob)
	m, ok := findMessage(msgs, "QUIT")
	require.True(t, ok)
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, []string{"bye"}, m.Params)

	_, exists := s.Clients[alice.ID]
	assert.False(t, exists, "client must be removed on quit")
	_, exists = s.Nicks["alice"]
	assert.False(t, exists, "nick must be freed on quit")

	ch := s.findChannel("#room")
	require.NotNil(t, ch)
	assert.False(t, ch.hasMember(alice.ID))
}

func TestPingPongAndUnknown(t *testing.T) {
	s := newTestServer()

	alice := newTestClient(t, s, 1)
	registerClient(t, s, alice, "alice")

	dispatch(s, alice, irc.Message{Command: "PING", Params: []string{"tok"}})
	msgs := drainMessages(alice)
	m, ok := findMessage(msgs, "PONG")
	require.True(t, ok)
	assert.Equal(t, []string{s.Config.ServerName, "tok"}, m.Params)

	dispatch(s, alice, irc.Message{Command: "PING"})
	msgs = drainMessages(alice)
	_, ok = findMessage(msgs, "409")
	assert.True(t, ok)

	dispatch(s, alice, irc.Message{Command: "WALLOPS"})
	msgs = drainMessages(alice)
	m, ok = findMessage(msgs, "421")
	require.True(t, ok)
	assert.Equal(t, "WALLOPS", m.Params[1])
}
