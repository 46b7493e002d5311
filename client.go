package main

import (
	"fmt"
	"net"
	"time"

	"github.com/horgh/irc"
)

// Client holds state about a single client connection.
type Client struct {
	// Conn holds the TCP connection to the client.
	Conn Conn

	// WriteChan is the channel to send to to write to the client. This is
	// the client's outbound buffer; writeLoop drains it.
	WriteChan chan irc.Message

	// Set when we could not queue a message to the client because its send
	// queue filled. The client gets dropped at the next opportunity.
	SendQueueExceeded bool

	// A unique id. This is the client's handle everywhere in the server;
	// channels hold members by it.
	ID uint64

	// Server references the main server the client is connected to. It's
	// helpful to have to avoid passing server all over the place.
	Server *Server

	// Registration state. A client must send the correct PASS, then a valid
	// NICK, then USER. Registered is set once, when all three are in.
	PassOK     bool
	Registered bool

	// DisplayNick is blank until the client sends a valid NICK.
	DisplayNick string
	User        string
	RealName    string

	// Channels the client is on. Canonicalized name to channel.
	Channels map[string]*Channel

	// The last time we heard anything from the client.
	LastActivityTime time.Time

	// The last time we sent the client a PING.
	LastPingTime time.Time
}

// NewClient creates a Client
func NewClient(s *Server, id uint64, conn net.Conn) *Client {
	now := time.Now()

	return &Client{
		Conn: NewConn(conn, s.Config.DeadTime),

		// Buffered so that we don't block on sending to the client inside the
		// event loop. If the client's queue fills, we flag it and drop it.
		WriteChan: make(chan irc.Message, 4096),

		ID:               id,
		Server:           s,
		Channels:         make(map[string]*Channel),
		LastActivityTime: now,
		LastPingTime:     now,
	}
}

func (c *Client) String() string {
	if c.DisplayNick != "" {
		return fmt.Sprintf("%d %s %s", c.ID, c.DisplayNick, c.Conn.RemoteAddr())
	}
	return fmt.Sprintf("%d %s", c.ID, c.Conn.RemoteAddr())
}

// readyForRegistration tells whether all registration requirements are in.
func (c *Client) readyForRegistration() bool {
	return c.PassOK && len(c.DisplayNick) > 0 && len(c.User) > 0
}

func (c *Client) onChannel(ch *Channel) bool {
	_, exists := c.Channels[canonicalizeChannel(ch.Name)]
	return exists
}

// maybeQueueMessage appends a message to the client's outbound buffer. If
// the buffer is full we flag the client rather than block the event loop.
func (c *Client) maybeQueueMessage(m irc.Message) {
	if c.SendQueueExceeded {
		return
	}

	select {
	case c.WriteChan <- m:
	default:
		c.SendQueueExceeded = true
	}
}

// messageFromServer sends the client an IRC message that appears to be from
// the server.
//
// Note: Only the event loop goroutine should call this.
func (c *Client) messageFromServer(command string, params []string) {
	// For numeric messages, we need to prepend the nick.
	// Use * for the nick in cases where the client doesn't have one yet.
	if isNumericCommand(command) {
		nick := "*"
		if len(c.DisplayNick) > 0 {
			nick = c.DisplayNick
		}
		newParams := []string{nick}
		newParams = append(newParams, params...)
		params = newParams
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:  c.Server.Config.ServerName,
		Command: command,
		Params:  params,
	})
}

// serverNotice sends the client an advisory NOTICE from the server. These
// are UX diagnostics, never part of a command's contract.
func (c *Client) serverNotice(text string) {
	nick := "*"
	if len(c.DisplayNick) > 0 {
		nick = c.DisplayNick
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:  c.Server.Config.ServerName,
		Command: "NOTICE",
		Params:  []string{nick, text},
	})
}

// messageClient sends a message to another client with this client as the
// source.
func (c *Client) messageClient(to *Client, command string, params []string) {
	to.maybeQueueMessage(irc.Message{
		Prefix:  c.DisplayNick,
		Command: command,
		Params:  params,
	})
}

// readLoop endlessly reads from the client's TCP connection. It parses each
// IRC protocol message and passes it to the server through the server's
// channel.
func (c *Client) readLoop() {
	for {
		if c.Server.isShuttingDown() {
			break
		}

		buf, err := c.Conn.Read()
		if err != nil {
			c.Server.log.Debugf("Client %s: %s", c, err)
			c.Server.newEvent(Event{Type: DeadClientEvent, ClientID: c.ID})
			break
		}

		message, err := irc.ParseMessage(buf)
		if err != nil && err != irc.ErrTruncated {
			// A malformed line is a protocol error, not a transport error. Skip
			// the line; the connection lives on.
			c.Server.log.Debugf("Client %s: malformed line: %s", c, err)
			continue
		}

		c.Server.newEvent(Event{
			Type:     MessageFromClientEvent,
			ClientID: c.ID,
			Message:  message,
		})
	}

	c.Server.log.Debugf("Client %s: reader shutting down", c)
}

// writeLoop endlessly reads from the client's channel, encodes each message,
// and writes it to the client's TCP connection.
func (c *Client) writeLoop() {
	for message := range c.WriteChan {
		buf, err := message.Encode()
		if err != nil && err != irc.ErrTruncated {
			c.Server.log.Errorf("Client %s: unable to encode message: %s", c, err)
			continue
		}

		if err := c.Conn.Write(buf); err != nil {
			c.Server.log.Debugf("Client %s: %s", c, err)
			c.Server.newEvent(Event{Type: DeadClientEvent, ClientID: c.ID})
			break
		}
	}

	c.Server.log.Debugf("Client %s: writer shutting down", c)
}

// quit cleans up the client and announces its departure.
//
// We broadcast QUIT to every channel the client is on, apply the post-leave
// channel rules, terminate any file transfer session it is part of, free its
// nick, and drop the connection.
//
// Note: Only the event loop goroutine should call this.
func (c *Client) quit(msg string) {
	if c.Registered {
		// Tell each client only once, no matter how many channels we share.
		informed := make(map[uint64]struct{})

		for _, ch := range c.Channels {
			for _, id := range ch.sortedMembers() {
				if id == c.ID {
					continue
				}
				if _, exists := informed[id]; exists {
					continue
				}
				if member, ok := c.Server.Clients[id]; ok {
					c.messageClient(member, "QUIT", []string{msg})
					informed[id] = struct{}{}
				}
			}
		}
	}

	for _, ch := range c.Channels {
		c.Server.removeFromChannel(ch, c)
	}

	c.Server.Transfers.clientGone(c)

	if len(c.DisplayNick) > 0 {
		delete(c.Server.Nicks, canonicalizeNick(c.DisplayNick))
	}

	c.messageFromServer("ERROR", []string{msg})

	delete(c.Server.Clients, c.ID)

	c.destroy()
}

// destroy closes the client's channel and TCP connection.
func (c *Client) destroy() {
	close(c.WriteChan)

	if err := c.Conn.Close(); err != nil {
		c.Server.log.Debugf("Client %s: problem closing connection: %s", c, err)
	}
}
