package main

import (
	"sort"
	"strconv"
)

// Channel holds everything to do with a channel.
type Channel struct {
	// Display name, as first created. The Channels map is keyed by the
	// canonicalized form.
	Name string

	// Current topic. May be blank.
	Topic string

	// Members in the channel, by client id.
	// If we have zero members, we should not exist.
	Members map[uint64]struct{}

	// Ops tracks nicks (canonicalized) who have operator status.
	Ops map[string]struct{}

	// Invited tracks nicks (canonicalized) holding a one-shot invite.
	Invited map[string]struct{}

	// Channel modes: +i invite only, +t topic restricted to ops, +k keyed,
	// +l user limit.
	InviteOnly      bool
	TopicRestricted bool

	// Key. Non-empty iff +k is set.
	Key string

	// User limit. > 0 iff +l is set; 0 means unlimited.
	Limit int
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		Members: make(map[uint64]struct{}),
		Ops:     make(map[string]struct{}),
		Invited: make(map[string]struct{}),
	}
}

func (ch *Channel) hasMember(id uint64) bool {
	_, exists := ch.Members[id]
	return exists
}

// sortedMembers returns member ids in ascending order. This gives us a
// stable ordering for NAMES replies and operator auto-promotion.
func (ch *Channel) sortedMembers() []uint64 {
	ids := make([]uint64, 0, len(ch.Members))
	for id := range ch.Members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (ch *Channel) isOp(nick string) bool {
	_, exists := ch.Ops[canonicalizeNick(nick)]
	return exists
}

func (ch *Channel) grantOps(nick string) {
	ch.Ops[canonicalizeNick(nick)] = struct{}{}
}

func (ch *Channel) removeOps(nick string) {
	delete(ch.Ops, canonicalizeNick(nick))
}

func (ch *Channel) invite(nick string) {
	ch.Invited[canonicalizeNick(nick)] = struct{}{}
}

func (ch *Channel) isInvited(nick string) bool {
	_, exists := ch.Invited[canonicalizeNick(nick)]
	return exists
}

// consumeInvite removes the invite for a nick, returning whether it was
// present. Invites are one-shot.
func (ch *Channel) consumeInvite(nick string) bool {
	key := canonicalizeNick(nick)
	_, exists := ch.Invited[key]
	if exists {
		delete(ch.Invited, key)
	}
	return exists
}

func (ch *Channel) isFull() bool {
	return ch.Limit > 0 && len(ch.Members) >= ch.Limit
}

// modeString renders the channel's current modes and their arguments, the
// way we report them in a 324 reply.
func (ch *Channel) modeString() (string, []string) {
	modes := "+"
	var args []string

	if ch.InviteOnly {
		modes += "i"
	}
	if ch.TopicRestricted {
		modes += "t"
	}
	if ch.Key != "" {
		modes += "k"
		args = append(args, ch.Key)
	}
	if ch.Limit > 0 {
		modes += "l"
		args = append(args, strconv.Itoa(ch.Limit))
	}

	return modes, args
}

// removeFromChannel takes the client out of the channel's member and op
// sets, then applies the post-leave rules: promote a replacement operator if
// the channel would be left with none, and delete the channel once empty.
//
// The caller is responsible for any PART/KICK/QUIT broadcast. This runs
// after PART, KICK, QUIT, and socket close.
func (s *Server) removeFromChannel(ch *Channel, c *Client) {
	delete(ch.Members, c.ID)
	ch.removeOps(c.DisplayNick)
	delete(c.Channels, canonicalizeChannel(ch.Name))

	s.channelMemberLeft(ch)
}

// channelMemberLeft restores the channel invariants after any membership
// loss. With members but no operators left, the first member by id is
// promoted and the promotion is broadcast as a server MODE. An empty channel
// is deleted.
func (s *Server) channelMemberLeft(ch *Channel) {
	if len(ch.Members) > 0 && len(ch.Ops) == 0 {
		id := ch.sortedMembers()[0]
		if member, exists := s.Clients[id]; exists {
			ch.grantOps(member.DisplayNick)
			s.broadcastToChannel(ch, s.serverMessage("MODE",
				[]string{ch.Name, "+o", member.DisplayNick}), nil)
		}
	}

	if len(ch.Members) == 0 {
		delete(s.Channels, canonicalizeChannel(ch.Name))
	}
}
