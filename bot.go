package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/horgh/irc"
)

// Bot is the in-process helper. It holds no connection; it speaks through
// the same broadcast path as any client and never mutates channel state
// directly. Privileged actions go through command injection so the normal
// permission checks apply.
type Bot struct {
	srv *Server

	// Nick the bot speaks as.
	Nick string

	started time.Time

	// Nicks (canonicalized) allowed to use the privileged bot commands.
	opsLower map[string]struct{}

	reminders []Reminder

	polls      map[int]*Poll
	nextPollID int

	// Per channel (canonicalized), nick (canonicalized) to the time we last
	// saw them speak there.
	lastSeen map[string]map[string]time.Time

	rng *rand.Rand
}

// Reminder is a pending !remind delivery.
type Reminder struct {
	// Where to deliver: a channel name or a nick.
	Where string
	Who   string
	Text  string
	Due   time.Time
}

// Poll is a channel-scoped vote.
type Poll struct {
	ID       int
	Question string
	Options  []string

	// Voter nick (canonicalized) to option index. A revote replaces the
	// previous choice.
	Votes map[string]int

	Open bool

	// Channel key (canonicalized) the poll belongs to.
	Channel string
}

var eightBallAnswers = []string{
	"It is certain.", "It is decidedly so.", "Without a doubt.",
	"Yes - definitely.", "You may rely on it.", "As I see it, yes.",
	"Most likely.", "Outlook good.", "Signs point to yes.", "Yes.",
	"Reply hazy, try again.", "Ask again later.", "Better not tell you now.",
	"Cannot predict now.", "Concentrate and ask again.", "Don't count on it.",
	"My reply is no.", "My sources say no.", "Outlook not so good.",
	"Very doubtful.",
}

// NewBot creates a Bot.
func NewBot(srv *Server, nick string) *Bot {
	return &Bot{
		srv:     srv,
		Nick:    nick,
		started: time.Now(),

		opsLower: map[string]struct{}{
			"admin":    {},
			"operator": {},
		},

		polls:      make(map[int]*Poll),
		nextPollID: 1,
		lastSeen:   make(map[string]map[string]time.Time),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// say sends a PRIVMSG as the bot. A channel target goes to every member; a
// nick target goes to that client.
func (b *Bot) say(where, text string) {
	m := irc.Message{
		Prefix:  b.Nick,
		Command: "PRIVMSG",
		Params:  []string{where, text},
	}

	if isChannelName(where) {
		if ch := b.srv.findChannel(where); ch != nil {
			b.srv.broadcastToChannel(ch, m, nil)
		}
		return
	}

	b.srv.sendToNick(where, m)
}

// onChannelCreated announces the bot in a brand-new channel.
func (b *Bot) onChannelCreated(chanName string) {
	if ch := b.srv.findChannel(chanName); ch != nil {
		b.srv.broadcastToChannel(ch, irc.Message{
			Prefix:  b.Nick,
			Command: "JOIN",
			Params:  []string{ch.Name},
		}, nil)
	}

	b.say(chanName, fmt.Sprintf("hi, I'm %s - try !help", b.Nick))
}

// tick runs the bot's periodic work: delivering due reminders.
func (b *Bot) tick(now time.Time) {
	b.deliverDueReminders(now)
}

// onPrivmsg is the bot hook, invoked for every PRIVMSG target after
// delivery.
func (b *Bot) onPrivmsg(from *Client, target, text string) {
	now := time.Now()

	b.deliverDueReminders(now)

	if isChannelName(target) {
		key := canonicalizeChannel(target)
		if b.lastSeen[key] == nil {
			b.lastSeen[key] = make(map[string]time.Time)
		}
		b.lastSeen[key][canonicalizeNick(from.DisplayNick)] = now
	}

	if len(text) == 0 {
		return
	}

	// Replies go to the channel, or back to the sender for private messages.
	where := target
	if !isChannelName(target) {
		where = from.DisplayNick
	}

	if text[0] != '!' {
		b.smallTalk(where, from.DisplayNick, text)
		return
	}

	cmd := text[1:]
	arg := ""
	if idx := strings.Index(cmd, " "); idx != -1 {
		arg = strings.TrimSpace(cmd[idx+1:])
		cmd = cmd[:idx]
	}

	switch asciiLower(cmd) {
	case "help":
		b.doHelp(where, arg)
	case "commands":
		b.say(where, "help commands about ping echo who modes uptime roll "+
			"8ball choose seen remind poll calc topic op deop kick")
	case "about":
		b.say(where, "I'm a friendly helper bot: everyone can use "+
			"!topic/!who/!modes/!roll/!8ball/!echo and friends, ops can "+
			"!op/!deop/!kick. Say my name and 'hi' and I'll greet you.")
	case "ping":
		b.say(where, "pong")
	case "echo":
		if len(arg) == 0 {
			b.say(where, "(nothing to echo)")
		} else {
			b.say(where, arg)
		}
	case "who":
		b.doWho(where)
	case "modes":
		b.doModes(from, where)
	case "uptime":
		b.say(where, fmt.Sprintf("up %s", formatElapsed(time.Since(b.started))))
	case "roll":
		b.doRoll(where, arg)
	case "8ball":
		b.say(where, eightBallAnswers[b.rng.Intn(len(eightBallAnswers))])
	case "choose":
		b.doChoose(where, arg)
	case "seen":
		b.doSeen(where, arg)
	case "remind":
		b.doRemind(from, where, arg, now)
	case "poll":
		b.doPoll(from, where, arg)
	case "calc":
		b.doCalc(where, arg)
	case "topic":
		b.doTopic(from, where, arg)
	case "op":
		b.doOp(from, where, arg, true)
	case "deop":
		b.doOp(from, where, arg, false)
	case "kick":
		b.doKick(from, where, arg)
	default:
		b.say(where, fmt.Sprintf("unknown command '%s'. Try !help", cmd))
	}
}

func (b *Bot) smallTalk(where, who, text string) {
	low := asciiLower(text)

	if !strings.Contains(low, asciiLower(b.Nick)) {
		return
	}

	if strings.Contains(low, "hello") || strings.Contains(low, "hi") ||
		strings.Contains(low, "hey") {
		b.say(where, fmt.Sprintf("hey %s (try !help)", who))
		return
	}

	if strings.Contains(low, "thanks") || strings.Contains(low, "thank you") {
		b.say(where, fmt.Sprintf("anytime, %s!", who))
	}
}

func (b *Bot) doHelp(where, arg string) {
	if len(arg) == 0 {
		b.say(where, "!help [cmd] | !about | !ping | !echo <text> | !who | "+
			"!modes | !uptime | !roll [XdY] | !8ball <q> | !choose a|b | "+
			"!seen <nick> | !remind <dur> <msg> | !poll ... | !calc <expr> | "+
			"!topic <text> | !op <nick> | !deop <nick> | !kick <nick> [reason]")
		return
	}

	topics := map[string]string{
		"roll":   "Usage: !roll [XdY] - rolls X dice of Y sides (default 1d6).",
		"8ball":  "Usage: !8ball <question> - reveals the truth.",
		"choose": "Usage: !choose a|b|c - picks one option for you.",
		"seen":   "Usage: !seen <nick> - when the nick last spoke here.",
		"remind": "Usage: !remind <duration> <message> - e.g. !remind 1h30m tea.",
		"poll": "Usage: !poll new <q> | <opt1> | <opt2> ... / !poll vote " +
			"<id> <n> / !poll show <id> / !poll close <id>",
		"calc":  "Usage: !calc <expr> - integers with + - * / and parentheses.",
		"modes": "Usage: !modes - shows current channel modes (i/t/k/l).",
		"who":   "Usage: !who - lists users in the channel, '@' marks operators.",
		"topic": "Usage: !topic <text> - requests a topic change (server enforces +t).",
		"op":    "Usage: !op <nick> - requests +o (server enforces perms).",
		"deop":  "Usage: !deop <nick> - requests -o (server enforces perms).",
		"kick":  "Usage: !kick <nick> [reason] - requests a kick (server enforces perms).",
		"echo":  "Usage: !echo <text> - repeats <text>.",
		"ping":  "Usage: !ping - pong.",
	}

	if help, exists := topics[asciiLower(arg)]; exists {
		b.say(where, help)
	} else {
		b.say(where, fmt.Sprintf("No help for '%s'. Try !help.", arg))
	}
}

func (b *Bot) doWho(where string) {
	if !isChannelName(where) {
		b.say(where, "Use in a channel.")
		return
	}

	ch := b.srv.findChannel(where)
	if ch == nil {
		b.say(where, "No such channel.")
		return
	}

	var names []string
	for _, id := range ch.sortedMembers() {
		member, exists := b.srv.Clients[id]
		if !exists {
			continue
		}
		if ch.isOp(member.DisplayNick) {
			names = append(names, "@"+member.DisplayNick)
		} else {
			names = append(names, member.DisplayNick)
		}
	}

	if len(names) == 0 {
		b.say(where, "(nobody here?)")
		return
	}
	b.say(where, strings.Join(names, " "))
}

// doModes asks the server for the channel modes as the requesting user; the
// 324 flows back to them.
func (b *Bot) doModes(from *Client, where string) {
	if !isChannelName(where) {
		b.say(where, "Use in a channel.")
		return
	}

	b.srv.injectCommand(from, irc.Message{
		Command: "MODE",
		Params:  []string{where},
	})
}

func (b *Bot) doRoll(where, arg string) {
	x, y := 1, 6

	if len(arg) > 0 {
		lower := asciiLower(arg)
		if idx := strings.IndexByte(lower, 'd'); idx == -1 {
			y, _ = strconv.Atoi(arg)
		} else {
			x, _ = strconv.Atoi(arg[:idx])
			y, _ = strconv.Atoi(arg[idx+1:])
		}
	}

	if x < 1 {
		x = 1
	}
	if x > 50 {
		x = 50
	}
	if y < 2 {
		y = 6
	}

	sum := 0
	out := fmt.Sprintf("roll %dd%d:", x, y)
	for i := 0; i < x; i++ {
		r := b.rng.Intn(y) + 1
		sum += r
		out += fmt.Sprintf(" %d", r)
	}
	if x > 1 {
		out += fmt.Sprintf(" (sum %d)", sum)
	}

	b.say(where, out)
}

func (b *Bot) doChoose(where, arg string) {
	var options []string
	for _, part := range strings.Split(arg, "|") {
		part = strings.TrimSpace(part)
		if len(part) > 0 {
			options = append(options, part)
		}
	}

	if len(options) < 2 {
		b.say(where, "give me at least two options, separated by |")
		return
	}

	b.say(where, options[b.rng.Intn(len(options))])
}

func (b *Bot) doSeen(where, arg string) {
	if !isChannelName(where) {
		b.say(where, "Use in a channel.")
		return
	}

	nick := arg
	if idx := strings.Index(nick, " "); idx != -1 {
		nick = nick[:idx]
	}
	if len(nick) == 0 {
		b.say(where, "Usage: !seen <nick>")
		return
	}

	if canonicalizeNick(nick) == canonicalizeNick(b.Nick) {
		b.say(where, "I'm right here.")
		return
	}

	seen, exists := b.lastSeen[canonicalizeChannel(where)][canonicalizeNick(nick)]
	if !exists {
		b.say(where, fmt.Sprintf("I haven't seen %s here.", nick))
		return
	}

	b.say(where, fmt.Sprintf("%s was last seen %s ago", nick,
		formatElapsed(time.Since(seen))))
}

func (b *Bot) doRemind(from *Client, where, arg string, now time.Time) {
	idx := strings.Index(arg, " ")
	if idx == -1 {
		b.say(where, "Usage: !remind <duration> <message>, e.g. !remind 10m tea")
		return
	}

	d, err := parseCompactDuration(arg[:idx])
	if err != nil {
		b.say(where, "I can't parse that duration. Try e.g. 1h30m or 45s.")
		return
	}

	text := strings.TrimSpace(arg[idx+1:])
	if len(text) == 0 {
		b.say(where, "Usage: !remind <duration> <message>, e.g. !remind 10m tea")
		return
	}

	b.reminders = append(b.reminders, Reminder{
		Where: where,
		Who:   from.DisplayNick,
		Text:  text,
		Due:   now.Add(d),
	})

	b.say(where, fmt.Sprintf("ok %s, I'll remind you in %s", from.DisplayNick,
		formatElapsed(d)))
}

func (b *Bot) deliverDueReminders(now time.Time) {
	var remaining []Reminder

	for _, r := range b.reminders {
		if r.Due.After(now) {
			remaining = append(remaining, r)
			continue
		}

		where := r.Where
		// A channel may have been deleted in the meantime; fall back to
		// messaging the owner directly.
		if isChannelName(where) && b.srv.findChannel(where) == nil {
			where = r.Who
		}

		b.say(where, fmt.Sprintf("%s: reminder: %s", r.Who, r.Text))
	}

	b.reminders = remaining
}

func (b *Bot) doPoll(from *Client, where, arg string) {
	usage := "Usage: !poll new <q> | <opt1> | <opt2> ... / !poll vote <id> " +
		"<n> / !poll show <id> / !poll close <id>"

	sub := arg
	rest := ""
	if idx := strings.Index(arg, " "); idx != -1 {
		sub = arg[:idx]
		rest = strings.TrimSpace(arg[idx+1:])
	}

	switch asciiLower(sub) {
	case "new":
		b.pollNew(from, where, rest)
	case "vote":
		b.pollVote(from, where, rest)
	case "show":
		b.pollShow(where, rest)
	case "close":
		b.pollClose(where, rest)
	default:
		b.say(where, usage)
	}
}

func (b *Bot) pollNew(from *Client, where, rest string) {
	if !isChannelName(where) {
		b.say(where, "Polls live in channels.")
		return
	}

	parts := strings.Split(rest, "|")
	question := strings.TrimSpace(parts[0])

	var options []string
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if len(part) > 0 {
			options = append(options, part)
		}
	}

	if len(question) == 0 || len(options) < 2 {
		b.say(where, "Usage: !poll new <question> | <opt1> | <opt2> [| ...]")
		return
	}

	id := b.nextPollID
	b.nextPollID++

	b.polls[id] = &Poll{
		ID:       id,
		Question: question,
		Options:  options,
		Votes:    make(map[string]int),
		Open:     true,
		Channel:  canonicalizeChannel(where),
	}

	b.say(where, fmt.Sprintf("poll #%d: %s - vote with !poll vote %d <n>",
		id, question, id))
	for i, opt := range options {
		b.say(where, fmt.Sprintf("  %d) %s", i+1, opt))
	}
}

// lookupPoll resolves a poll id in the context of the current channel.
func (b *Bot) lookupPoll(where, idStr string) *Poll {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return nil
	}

	poll, exists := b.polls[id]
	if !exists || poll.Channel != canonicalizeChannel(where) {
		return nil
	}

	return poll
}

func (b *Bot) pollVote(from *Client, where, rest string) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		b.say(where, "Usage: !poll vote <id> <n>")
		return
	}

	poll := b.lookupPoll(where, fields[0])
	if poll == nil {
		b.say(where, "No such poll here.")
		return
	}

	if !poll.Open {
		b.say(where, fmt.Sprintf("poll #%d is closed.", poll.ID))
		return
	}

	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(poll.Options) {
		b.say(where, fmt.Sprintf("Pick an option between 1 and %d.",
			len(poll.Options)))
		return
	}

	// The latest choice wins.
	poll.Votes[canonicalizeNick(from.DisplayNick)] = n - 1

	b.say(where, fmt.Sprintf("%s voted on poll #%d", from.DisplayNick, poll.ID))
}

func (b *Bot) pollShow(where, rest string) {
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		b.say(where, "Usage: !poll show <id>")
		return
	}

	poll := b.lookupPoll(where, fields[0])
	if poll == nil {
		b.say(where, "No such poll here.")
		return
	}

	state := "open"
	if !poll.Open {
		state = "closed"
	}
	b.say(where, fmt.Sprintf("poll #%d (%s): %s", poll.ID, state,
		poll.Question))

	counts := make([]int, len(poll.Options))
	for _, choice := range poll.Votes {
		counts[choice]++
	}

	for i, opt := range poll.Options {
		b.say(where, fmt.Sprintf("  %d) %s - %d vote(s)", i+1, opt, counts[i]))
	}
}

func (b *Bot) pollClose(where, rest string) {
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		b.say(where, "Usage: !poll close <id>")
		return
	}

	poll := b.lookupPoll(where, fields[0])
	if poll == nil {
		b.say(where, "No such poll here.")
		return
	}

	if !poll.Open {
		b.say(where, fmt.Sprintf("poll #%d is already closed.", poll.ID))
		return
	}

	poll.Open = false
	b.pollShow(where, fields[0])
}

func (b *Bot) doCalc(where, arg string) {
	if len(arg) == 0 {
		b.say(where, "Usage: !calc <expr>, e.g. !calc (2+3)*4")
		return
	}

	result, err := evalExpr(arg)
	if err != nil {
		b.say(where, fmt.Sprintf("calc: %s", err))
		return
	}

	b.say(where, fmt.Sprintf("%s = %d", arg, result))
}

func (b *Bot) doTopic(from *Client, where, arg string) {
	if !isChannelName(where) {
		b.say(where, "Use in a channel.")
		return
	}
	if len(arg) == 0 {
		b.say(where, "Usage: !topic <new topic>")
		return
	}

	b.srv.injectCommand(from, irc.Message{
		Command: "TOPIC",
		Params:  []string{where, arg},
	})
}

func (b *Bot) isBotOp(nick string) bool {
	_, exists := b.opsLower[canonicalizeNick(nick)]
	return exists
}

func (b *Bot) doOp(from *Client, where, arg string, grant bool) {
	if !isChannelName(where) {
		b.say(where, "Use in a channel.")
		return
	}

	verb := "op"
	flag := "+o"
	if !grant {
		verb = "deop"
		flag = "-o"
	}

	if len(arg) == 0 {
		b.say(where, fmt.Sprintf("Usage: !%s <nick>", verb))
		return
	}

	if !b.isBotOp(from.DisplayNick) {
		b.say(where, fmt.Sprintf("%s: not authorized.", from.DisplayNick))
		return
	}

	b.srv.injectCommand(from, irc.Message{
		Command: "MODE",
		Params:  []string{where, flag, arg},
	})
}

func (b *Bot) doKick(from *Client, where, arg string) {
	if !isChannelName(where) {
		b.say(where, "Use in a channel.")
		return
	}

	if !b.isBotOp(from.DisplayNick) {
		b.say(where, fmt.Sprintf("%s: not authorized.", from.DisplayNick))
		return
	}

	victim := arg
	reason := ""
	if idx := strings.Index(arg, " "); idx != -1 {
		victim = arg[:idx]
		reason = strings.TrimSpace(arg[idx+1:])
	}

	if len(victim) == 0 {
		b.say(where, "Usage: !kick <nick> [reason]")
		return
	}

	params := []string{where, victim}
	if len(reason) > 0 {
		params = append(params, reason)
	}

	b.srv.injectCommand(from, irc.Message{
		Command: "KICK",
		Params:  params,
	})
}
