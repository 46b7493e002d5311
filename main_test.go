package main

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/horgh/irc"
	"github.com/sirupsen/logrus"
)

// newTestServer builds a Server without a TCP listener. Tests drive it by
// feeding messages to the dispatcher directly and reading clients' write
// buffers.
func newTestServer() *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)

	s := &Server{
		Config:       defaultConfig(),
		Password:     "hunter2",
		Clients:      make(map[uint64]*Client),
		Nicks:        make(map[string]uint64),
		Channels:     make(map[string]*Channel),
		ShutdownChan: make(chan struct{}),
		ToServerChan: make(chan Event),
		log:          log,
	}
	s.Transfers = NewTransferManager(s)
	s.Bot = NewBot(s, s.Config.BotNick)

	return s
}

// newTestClient attaches a client backed by one end of an in-memory pipe. No
// read or write goroutines run, so everything queued stays in WriteChan.
func newTestClient(t *testing.T, s *Server, id uint64) *Client {
	t.Helper()

	ours, theirs := net.Pipe()
	t.Cleanup(func() { _ = theirs.Close() })

	now := time.Now()

	c := &Client{
		Conn:             NewConn(ours, time.Minute),
		WriteChan:        make(chan irc.Message, 4096),
		ID:               id,
		Server:           s,
		Channels:         make(map[string]*Channel),
		LastActivityTime: now,
		LastPingTime:     now,
	}
	s.Clients[id] = c

	return c
}

// dispatch runs a message through the command dispatcher, then drains any
// commands the bot injected, the way the event loop does.
func dispatch(s *Server, c *Client, m irc.Message) {
	s.handleMessage(c, m)

	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.handleEvent(next)
	}
}

// drainMessages empties a client's write buffer.
func drainMessages(c *Client) []irc.Message {
	var msgs []irc.Message

	for {
		select {
		case m, ok := <-c.WriteChan:
			if !ok {
				return msgs
			}
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

// findMessage returns the first message with the given command.
func findMessage(msgs []irc.Message, command string) (irc.Message, bool) {
	for _, m := range msgs {
		if m.Command == command {
			return m, true
		}
	}
	return irc.Message{}, false
}

// registerClient walks a client through PASS/NICK/USER and discards the
// welcome burst.
func registerClient(t *testing.T, s *Server, c *Client, nick string) {
	t.Helper()

	dispatch(s, c, irc.Message{Command: "PASS", Params: []string{s.Password}})
	dispatch(s, c, irc.Message{Command: "NICK", Params: []string{nick}})
	dispatch(s, c, irc.Message{Command: "USER",
		Params: []string{nick, "0", "*", "Test User"}})

	msgs := drainMessages(c)
	if _, ok := findMessage(msgs, "001"); !ok {
		t.Fatalf("client %s did not register", nick)
	}
}

// joinChannel joins the client to a channel and discards the join burst.
func joinChannel(t *testing.T, s *Server, c *Client, name string) {
	t.Helper()

	dispatch(s, c, irc.Message{Command: "JOIN", Params: []string{name}})

	msgs := drainMessages(c)
	if _, ok := findMessage(msgs, "366"); !ok {
		t.Fatalf("client %s did not join %s", c.DisplayNick, name)
	}
}
