package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/horgh/irc"
)

// handleMessage takes action based on a client's IRC message.
//
// This is the command dispatcher: it validates the command against the
// client's registration state, mutates the shared model, and queues output
// on recipients' buffers. Only the event loop goroutine runs it.
func (s *Server) handleMessage(c *Client, m irc.Message) {
	// Record that client said something to us just now.
	c.LastActivityTime = time.Now()

	// Clients SHOULD NOT send a prefix. Ignore it if they do.
	m.Prefix = ""

	command := strings.ToUpper(m.Command)

	// Non-RFC command that appears to be widely supported. Just ignore it.
	if command == "CAP" {
		return
	}

	switch command {
	case "PASS":
		s.passCommand(c, m)
		return
	case "NICK":
		s.nickCommand(c, m)
		return
	case "USER":
		s.userCommand(c, m)
		return
	case "PING":
		s.pingCommand(c, m)
		return
	case "PONG":
		// Not doing anything with this. Just accept it.
		return
	case "QUIT":
		s.quitCommand(c, m)
		return
	}

	// All other commands require a registered client.
	if !c.Registered {
		// 451 ERR_NOTREGISTERED
		c.messageFromServer("451", []string{"You have not registered"})
		return
	}

	switch command {
	case "PRIVMSG", "NOTICE":
		s.privmsgCommand(c, m)
	case "JOIN":
		s.joinCommand(c, m)
	case "PART":
		s.partCommand(c, m)
	case "TOPIC":
		s.topicCommand(c, m)
	case "MODE":
		s.modeCommand(c, m)
	case "INVITE":
		s.inviteCommand(c, m)
	case "KICK":
		s.kickCommand(c, m)
	case "FILESEND":
		s.Transfers.offerCommand(c, m)
	case "FILEACCEPT":
		s.Transfers.acceptCommand(c, m)
	case "FILEDATA":
		s.Transfers.dataCommand(c, m)
	case "FILEDONE":
		s.Transfers.doneCommand(c, m)
	case "FILECANCEL":
		s.Transfers.cancelCommand(c, m)
	default:
		// 421 ERR_UNKNOWNCOMMAND
		c.messageFromServer("421", []string{m.Command, "Unknown command"})
	}
}

func (s *Server) passCommand(c *Client, m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"PASS", "Not enough parameters"})
		return
	}

	if c.Registered {
		// 462 ERR_ALREADYREGISTRED
		c.messageFromServer("462", []string{"You may not reregister"})
		return
	}

	if m.Params[0] == s.Password {
		c.PassOK = true
	} else {
		// 464 ERR_PASSWDMISMATCH
		c.messageFromServer("464", []string{"Password incorrect"})
	}

	s.tryRegister(c)
}

func (s *Server) nickCommand(c *Client, m irc.Message) {
	if !c.PassOK {
		// No nick before an accepted PASS.
		c.messageFromServer("451", []string{"You have not registered"})
		return
	}

	if len(m.Params) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		c.messageFromServer("431", []string{"No nickname given"})
		return
	}

	nick := m.Params[0]

	if !isValidNick(nick) {
		// 432 ERR_ERRONEUSNICKNAME
		c.messageFromServer("432", []string{nick, "Erroneous nickname"})
		return
	}

	// Nick must be caselessly unique.
	nickCanon := canonicalizeNick(nick)

	if id, exists := s.Nicks[nickCanon]; exists && id != c.ID {
		// 433 ERR_NICKNAMEINUSE
		c.messageFromServer("433", []string{nick, "Nickname is already in use"})
		return
	}

	old := c.DisplayNick

	// Free the old nick (if there is one) and flag the new one as taken by
	// this client.
	if len(old) > 0 {
		delete(s.Nicks, canonicalizeNick(old))
	}
	s.Nicks[nickCanon] = c.ID

	if len(old) > 0 {
		// Channel operator and invite state is nickname-keyed. Carry it over.
		for _, ch := range c.Channels {
			if ch.isOp(old) {
				ch.removeOps(old)
				ch.grantOps(nick)
			}
			if ch.consumeInvite(old) {
				ch.invite(nick)
			}
		}

		// Inform other clients on shared channels. Each only once. The message
		// comes from the old nick.
		informed := make(map[uint64]struct{})
		for _, ch := range c.Channels {
			for id := range ch.Members {
				if id == c.ID {
					continue
				}
				if _, exists := informed[id]; exists {
					continue
				}
				if member, ok := s.Clients[id]; ok {
					member.maybeQueueMessage(irc.Message{
						Prefix:  old,
						Command: "NICK",
						Params:  []string{nick},
					})
					informed[id] = struct{}{}
				}
			}
		}
	}

	c.DisplayNick = nick

	s.tryRegister(c)
}

func (s *Server) userCommand(c *Client, m irc.Message) {
	if !c.PassOK || len(c.DisplayNick) == 0 {
		c.messageFromServer("451", []string{"You have not registered"})
		return
	}

	if c.Registered {
		// 462 ERR_ALREADYREGISTRED
		c.messageFromServer("462", []string{"You may not reregister"})
		return
	}

	// 4 parameters: <user> <mode> <unused> <realname>
	if len(m.Params) < 4 || len(m.Params[3]) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"USER", "Not enough parameters"})
		return
	}

	c.User = m.Params[0]
	c.RealName = m.Params[3]

	s.tryRegister(c)
}

// tryRegister promotes the client to registered once PASS, NICK, and USER
// have all been accepted. The welcome is sent exactly once.
func (s *Server) tryRegister(c *Client) {
	if c.Registered || !c.readyForRegistration() {
		return
	}

	c.Registered = true

	// 001 RPL_WELCOME
	c.messageFromServer("001", []string{
		fmt.Sprintf("Welcome to %s %s", s.Config.ServerName, c.DisplayNick),
	})

	c.serverNotice("You're registered! Try: JOIN #room")
}

func (s *Server) pingCommand(c *Client, m irc.Message) {
	if len(m.Params) == 0 {
		// 409 ERR_NOORIGIN
		c.messageFromServer("409", []string{"No origin specified"})
		return
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:  s.Config.ServerName,
		Command: "PONG",
		Params:  []string{s.Config.ServerName, m.Params[0]},
	})
}

func (s *Server) quitCommand(c *Client, m irc.Message) {
	reason := "Quit"
	if len(m.Params) > 0 && len(m.Params[0]) > 0 {
		reason = m.Params[0]
	}

	c.quit(reason)
}

// privmsgCommand handles both PRIVMSG and NOTICE. The target list is comma
// separated and may mix channels and nicks.
func (s *Server) privmsgCommand(c *Client, m irc.Message) {
	if len(m.Params) == 0 {
		// 411 ERR_NORECIPIENT
		c.messageFromServer("411", []string{
			fmt.Sprintf("No recipient given (%s)", strings.ToUpper(m.Command)),
		})
		return
	}

	if len(m.Params) < 2 || len(m.Params[1]) == 0 {
		// 412 ERR_NOTEXTTOSEND
		c.messageFromServer("412", []string{"No text to send"})
		return
	}

	command := strings.ToUpper(m.Command)
	text := m.Params[1]

	for _, target := range strings.Split(m.Params[0], ",") {
		if len(target) == 0 {
			continue
		}

		if isChannelName(target) {
			ch := s.findChannel(target)
			if ch == nil {
				// 403 ERR_NOSUCHCHANNEL
				c.messageFromServer("403", []string{target, "No such channel"})
				continue
			}

			if !ch.hasMember(c.ID) {
				// 442 ERR_NOTONCHANNEL
				c.messageFromServer("442", []string{target,
					"You're not on that channel"})
				continue
			}

			s.broadcastToChannel(ch, irc.Message{
				Prefix:  c.DisplayNick,
				Command: command,
				Params:  []string{ch.Name, text},
			}, c)

			if command == "PRIVMSG" {
				s.Bot.onPrivmsg(c, ch.Name, text)
			}
			continue
		}

		// Messaging a nick. The bot holds no connection, so a message to it
		// never resolves through the client map.
		if canonicalizeNick(target) == canonicalizeNick(s.Bot.Nick) {
			if command == "PRIVMSG" {
				s.Bot.onPrivmsg(c, target, text)
			}
			continue
		}

		dst := s.findClientByNick(target)
		if dst == nil {
			// 401 ERR_NOSUCHNICK
			c.messageFromServer("401", []string{target, "No such nick"})
			continue
		}

		c.messageClient(dst, command, []string{dst.DisplayNick, text})

		if command == "PRIVMSG" {
			s.Bot.onPrivmsg(c, dst.DisplayNick, text)
		}
	}
}

func (s *Server) joinCommand(c *Client, m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"JOIN", "Not enough parameters"})
		return
	}

	name := m.Params[0]
	key := ""
	if len(m.Params) >= 2 {
		key = m.Params[1]
	}

	if !isValidChannel(name) {
		// 403 ERR_NOSUCHCHANNEL. Used to indicate channel name is invalid.
		c.messageFromServer("403", []string{name, "No such channel"})
		return
	}

	created := s.findChannel(name) == nil
	ch := s.getOrCreateChannel(name)

	// Is the client in the channel already? Ignore it if so.
	if ch.hasMember(c.ID) {
		return
	}

	// Admission checks, in order: key, invite, limit.
	if len(ch.Key) > 0 && ch.Key != key {
		// 475 ERR_BADCHANNELKEY
		c.messageFromServer("475", []string{ch.Name, "Cannot join channel (+k)"})
		return
	}

	if ch.InviteOnly && !ch.isInvited(c.DisplayNick) {
		// 473 ERR_INVITEONLYCHAN
		c.messageFromServer("473", []string{ch.Name, "Cannot join channel (+i)"})
		return
	}

	if ch.isFull() {
		// 471 ERR_CHANNELISFULL
		c.messageFromServer("471", []string{ch.Name, "Cannot join channel (+l)"})
		return
	}

	// Invites are one-shot.
	ch.consumeInvite(c.DisplayNick)

	ch.Members[c.ID] = struct{}{}
	c.Channels[canonicalizeChannel(ch.Name)] = ch

	// The first member of a channel gets ops.
	if len(ch.Members) == 1 {
		ch.grantOps(c.DisplayNick)
	}

	// Everyone in the channel, including the client, sees the join.
	s.broadcastToChannel(ch, irc.Message{
		Prefix:  c.DisplayNick,
		Command: "JOIN",
		Params:  []string{ch.Name},
	}, nil)

	if len(ch.Topic) > 0 {
		// 332 RPL_TOPIC
		c.messageFromServer("332", []string{ch.Name, ch.Topic})
	}

	// 353 RPL_NAMREPLY / 366 RPL_ENDOFNAMES
	var names []string
	for _, id := range ch.sortedMembers() {
		member, exists := s.Clients[id]
		if !exists {
			continue
		}
		if ch.isOp(member.DisplayNick) {
			names = append(names, "@"+member.DisplayNick)
		} else {
			names = append(names, member.DisplayNick)
		}
	}
	c.messageFromServer("353", []string{"=", ch.Name, strings.Join(names, " ")})
	c.messageFromServer("366", []string{ch.Name, "End of NAMES list."})

	if created {
		s.Bot.onChannelCreated(ch.Name)
	}
}

func (s *Server) partCommand(c *Client, m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"PART", "Not enough parameters"})
		return
	}

	ch := s.findChannel(m.Params[0])
	if ch == nil || !ch.hasMember(c.ID) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{m.Params[0],
			"You're not on that channel"})
		return
	}

	params := []string{ch.Name}
	if len(m.Params) >= 2 && len(m.Params[1]) > 0 {
		params = append(params, m.Params[1])
	}

	s.broadcastToChannel(ch, irc.Message{
		Prefix:  c.DisplayNick,
		Command: "PART",
		Params:  params,
	}, nil)

	s.removeFromChannel(ch, c)
}

func (s *Server) topicCommand(c *Client, m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"TOPIC", "Not enough parameters"})
		return
	}

	ch := s.findChannel(m.Params[0])
	if ch == nil {
		// 403 ERR_NOSUCHCHANNEL
		c.messageFromServer("403", []string{m.Params[0], "No such channel"})
		return
	}

	if !ch.hasMember(c.ID) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{ch.Name, "You're not on that channel"})
		return
	}

	// Without a topic argument this is a query.
	if len(m.Params) < 2 || len(m.Params[1]) == 0 {
		if len(ch.Topic) == 0 {
			// 331 RPL_NOTOPIC
			c.messageFromServer("331", []string{ch.Name, "No topic is set"})
		} else {
			// 332 RPL_TOPIC
			c.messageFromServer("332", []string{ch.Name, ch.Topic})
		}
		return
	}

	if ch.TopicRestricted && !ch.isOp(c.DisplayNick) {
		// 482 ERR_CHANOPRIVSNEEDED
		c.messageFromServer("482", []string{ch.Name, "You're not channel operator"})
		return
	}

	ch.Topic = m.Params[1]

	s.broadcastToChannel(ch, irc.Message{
		Prefix:  c.DisplayNick,
		Command: "TOPIC",
		Params:  []string{ch.Name, ch.Topic},
	}, nil)
}

// modeChange is one applied channel mode flag, recorded so we can broadcast
// a compact MODE line afterwards. Args appear in consumption order.
type modeChange struct {
	sign byte
	flag byte
	arg  string
}

func renderModeChanges(changes []modeChange) (string, []string) {
	modes := ""
	var args []string
	var cur byte

	for _, change := range changes {
		if change.sign != cur {
			modes += string(change.sign)
			cur = change.sign
		}
		modes += string(change.flag)
		if len(change.arg) > 0 {
			args = append(args, change.arg)
		}
	}

	return modes, args
}

func (s *Server) modeCommand(c *Client, m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"MODE", "Not enough parameters"})
		return
	}

	ch := s.findChannel(m.Params[0])
	if ch == nil {
		// 403 ERR_NOSUCHCHANNEL
		c.messageFromServer("403", []string{m.Params[0], "No such channel"})
		return
	}

	if !ch.hasMember(c.ID) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{ch.Name, "You're not on that channel"})
		return
	}

	// Without flags this is a query.
	if len(m.Params) == 1 {
		modes, args := ch.modeString()
		params := []string{ch.Name, modes}
		params = append(params, args...)
		// 324 RPL_CHANNELMODEIS
		c.messageFromServer("324", params)
		return
	}

	if !ch.isOp(c.DisplayNick) {
		// 482 ERR_CHANOPRIVSNEEDED
		c.messageFromServer("482", []string{ch.Name, "You're not channel operator"})
		return
	}

	flags := m.Params[1]
	adding := true
	argi := 2
	var changes []modeChange

	// nextArg consumes the next mode argument, if any.
	nextArg := func() (string, bool) {
		if argi >= len(m.Params) {
			return "", false
		}
		arg := m.Params[argi]
		argi++
		return arg, true
	}

	// finish broadcasts whatever changes were applied. We do this even when
	// a later flag aborts the command, so members see the partial result.
	finish := func() {
		if len(changes) == 0 {
			return
		}
		modes, args := renderModeChanges(changes)
		params := []string{ch.Name, modes}
		params = append(params, args...)
		s.broadcastToChannel(ch, irc.Message{
			Prefix:  c.DisplayNick,
			Command: "MODE",
			Params:  params,
		}, nil)
	}

	sign := func() byte {
		if adding {
			return '+'
		}
		return '-'
	}

	for i := 0; i < len(flags); i++ {
		f := flags[i]

		switch f {
		case '+':
			adding = true
		case '-':
			adding = false

		case 'i':
			ch.InviteOnly = adding
			changes = append(changes, modeChange{sign(), 'i', ""})

		case 't':
			ch.TopicRestricted = adding
			changes = append(changes, modeChange{sign(), 't', ""})

		case 'k':
			if adding {
				key, ok := nextArg()
				if !ok || len(key) == 0 {
					c.messageFromServer("461", []string{"MODE",
						"Not enough parameters"})
					finish()
					return
				}
				ch.Key = key
				changes = append(changes, modeChange{'+', 'k', key})
			} else {
				ch.Key = ""
				changes = append(changes, modeChange{'-', 'k', ""})
			}

		case 'o':
			nick, ok := nextArg()
			if !ok {
				c.messageFromServer("461", []string{"MODE",
					"Not enough parameters"})
				finish()
				return
			}
			if adding {
				ch.grantOps(nick)
			} else {
				ch.removeOps(nick)
			}
			changes = append(changes, modeChange{sign(), 'o', nick})

		case 'l':
			if adding {
				arg, ok := nextArg()
				if !ok {
					c.messageFromServer("461", []string{"MODE",
						"Not enough parameters"})
					finish()
					return
				}
				limit, err := strconv.Atoi(arg)
				if err != nil {
					c.messageFromServer("461", []string{"MODE",
						"Not enough parameters"})
					finish()
					return
				}
				if limit < 0 {
					limit = 0
				}
				// Never evict: a limit below the current member count is
				// refused outright.
				if limit > 0 && limit < len(ch.Members) {
					// 471 ERR_CHANNELISFULL
					c.messageFromServer("471", []string{ch.Name,
						"Channel limit is below member count"})
					finish()
					return
				}
				ch.Limit = limit
				changes = append(changes, modeChange{'+', 'l', arg})
			} else {
				ch.Limit = 0
				changes = append(changes, modeChange{'-', 'l', ""})
			}

		default:
			// Unknown flags are ignored.
		}
	}

	finish()
}

func (s *Server) inviteCommand(c *Client, m irc.Message) {
	if len(m.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"INVITE", "Not enough parameters"})
		return
	}

	nick := m.Params[0]

	ch := s.findChannel(m.Params[1])
	if ch == nil {
		// 403 ERR_NOSUCHCHANNEL
		c.messageFromServer("403", []string{m.Params[1], "No such channel"})
		return
	}

	if !ch.hasMember(c.ID) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{ch.Name, "You're not on that channel"})
		return
	}

	if !ch.isOp(c.DisplayNick) {
		// 482 ERR_CHANOPRIVSNEEDED
		c.messageFromServer("482", []string{ch.Name, "You're not channel operator"})
		return
	}

	target := s.findClientByNick(nick)
	if target == nil {
		// 401 ERR_NOSUCHNICK
		c.messageFromServer("401", []string{nick, "No such nick"})
		return
	}

	ch.invite(target.DisplayNick)

	c.messageClient(target, "INVITE", []string{target.DisplayNick, ch.Name})

	// 341 RPL_INVITING
	c.messageFromServer("341", []string{target.DisplayNick, ch.Name})
}

func (s *Server) kickCommand(c *Client, m irc.Message) {
	if len(m.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"KICK", "Not enough parameters"})
		return
	}

	ch := s.findChannel(m.Params[0])
	if ch == nil {
		// 403 ERR_NOSUCHCHANNEL
		c.messageFromServer("403", []string{m.Params[0], "No such channel"})
		return
	}

	if !ch.hasMember(c.ID) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{ch.Name, "You're not on that channel"})
		return
	}

	if !ch.isOp(c.DisplayNick) {
		// 482 ERR_CHANOPRIVSNEEDED
		c.messageFromServer("482", []string{ch.Name, "You're not channel operator"})
		return
	}

	victim := s.findClientByNick(m.Params[1])
	if victim == nil || !ch.hasMember(victim.ID) {
		// 441 ERR_USERNOTINCHANNEL
		c.messageFromServer("441", []string{m.Params[1], ch.Name,
			"They aren't on that channel"})
		return
	}

	if victim.ID == c.ID {
		c.messageFromServer("482", []string{ch.Name, "You cannot kick yourself"})
		return
	}

	reason := "Kicked"
	if len(m.Params) >= 3 && len(m.Params[2]) > 0 {
		reason = m.Params[2]
	}

	// Everyone, including the victim, sees the kick.
	s.broadcastToChannel(ch, irc.Message{
		Prefix:  c.DisplayNick,
		Command: "KICK",
		Params:  []string{ch.Name, victim.DisplayNick, reason},
	}, nil)

	s.removeFromChannel(ch, victim)
}
