package main

import (
	"fmt"
	"net"
	"os"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/horgh/irc"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// Server holds the state for a server.
// I put everything global to a server in an instance of struct rather than
// have global variables.
type Server struct {
	Config Config

	// Password clients must send with PASS.
	Password string

	// Client id to Client. Registered or not.
	Clients map[uint64]*Client

	// Canonicalized nickname to client id.
	Nicks map[string]uint64

	// Channel name (canonicalized) to Channel.
	Channels map[string]*Channel

	// File transfer sessions.
	Transfers *TransferManager

	// The helper bot. It has no connection; it speaks through broadcasts.
	Bot *Bot

	// When we close this channel, this indicates that we're shutting down.
	// Other goroutines can check if this channel is closed.
	ShutdownChan chan struct{}

	// Tell the server something on this channel.
	ToServerChan chan Event

	// Commands queued from inside a dispatch (the bot injecting a command as
	// a user). Drained by the event loop after the current command completes
	// so ordering guarantees hold.
	pending []Event

	// TCP listener.
	Listener net.Listener

	// WaitGroup to ensure all goroutines clean up before we end.
	WG conc.WaitGroup

	log *logrus.Logger
}

// Event holds a message containing something to tell the server.
type Event struct {
	Type EventType

	ClientID uint64

	Client *Client

	Message irc.Message
}

// EventType is a type of event we can tell the server about.
type EventType int

const (
	// NullEvent is a default event. This means the event was not populated.
	NullEvent EventType = iota

	// NewClientEvent means a new client connected.
	NewClientEvent

	// DeadClientEvent means client died for some reason. Clean it up.
	DeadClientEvent

	// MessageFromClientEvent means a client sent a message.
	MessageFromClientEvent

	// WakeUpEvent means the server should wake up and do bookkeeping.
	WakeUpEvent
)

func main() {
	log := logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		TimestampFormat: time.RFC3339,
	})

	args, err := getArgs()
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}

	server, err := newServer(args, log)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}

	if err := server.start(); err != nil {
		log.Error(err)
		os.Exit(1)
	}

	log.Info("Server shutdown cleanly.")
}

func newServer(args Args, log *logrus.Logger) (*Server, error) {
	s := Server{
		Password: args.Password,
		Clients:  make(map[uint64]*Client),
		Nicks:    make(map[string]uint64),
		Channels: make(map[string]*Channel),

		// shutdown() closes this channel.
		ShutdownChan: make(chan struct{}),

		// We never manually close this channel.
		ToServerChan: make(chan Event),

		log: log,
	}

	if err := s.checkAndParseConfig(args.ConfigFile); err != nil {
		return nil, fmt.Errorf("configuration problem: %s", err)
	}

	s.Transfers = NewTransferManager(&s)
	s.Bot = NewBot(&s, s.Config.BotNick)

	listenAddr := fmt.Sprintf("%s:%d", s.Config.ListenHost, args.Port)
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("unable to listen: %s", err)
	}
	s.Listener = ln

	return &s, nil
}

// start starts up the server.
//
// We start goroutines for accepting connections and periodic wakeups, and
// then run the event loop. The event loop goroutine is the only one that
// mutates server state.
func (s *Server) start() error {
	s.log.Infof("ircserv listening on %s", s.Listener.Addr())

	// acceptConnections accepts connections on the TCP listener.
	s.WG.Go(s.acceptConnections)

	// Alarm is a goroutine to wake up this one periodically so we can do
	// things like ping clients and deliver bot reminders.
	s.WG.Go(s.alarm)

	s.eventLoop()

	s.WG.Wait()

	return nil
}

// eventLoop processes events on the server's channel.
//
// It continues until the shutdown channel closes, indicating shutdown.
func (s *Server) eventLoop() {
	for {
		select {
		case evt := <-s.ToServerChan:
			s.handleEvent(evt)

			// Commands the bot injected during this dispatch run now, in
			// order, before anything else from the sockets.
			for len(s.pending) > 0 {
				next := s.pending[0]
				s.pending = s.pending[1:]
				s.handleEvent(next)
			}

		case <-s.ShutdownChan:
			return
		}
	}
}

func (s *Server) handleEvent(evt Event) {
	switch evt.Type {
	case NewClientEvent:
		s.log.Infof("New client connection: %s", evt.Client)
		s.Clients[evt.Client.ID] = evt.Client
		evt.Client.serverNotice(fmt.Sprintf(
			"Welcome to %s. Please authenticate: PASS <password>",
			s.Config.ServerName))

	case DeadClientEvent:
		if client, exists := s.Clients[evt.ClientID]; exists {
			s.log.Infof("Client %s died.", client)
			client.quit("I/O error")
		}

	case MessageFromClientEvent:
		if client, exists := s.Clients[evt.ClientID]; exists {
			s.log.Debugf("Client %s: message: %s", client, evt.Message)
			s.handleMessage(client, evt.Message)
		}

	case WakeUpEvent:
		s.checkAndPingClients()
		s.Bot.tick(time.Now())

	default:
		s.log.Errorf("Unexpected event: %d", evt.Type)
	}
}

// shutdown starts server shutdown.
func (s *Server) shutdown() {
	s.log.Info("Server shutdown initiated.")

	// Closing ShutdownChan indicates to other goroutines that we're shutting
	// down.
	close(s.ShutdownChan)

	if err := s.Listener.Close(); err != nil {
		s.log.Warnf("Problem closing TCP listener: %s", err)
	}

	// All clients need to be told. This also closes their write channels.
	for _, client := range s.Clients {
		client.quit("Server shutting down")
	}
}

// acceptConnections accepts TCP connections and tells the main server loop
// through a channel. It sets up separate goroutines for reading/writing to
// and from the client.
func (s *Server) acceptConnections() {
	id := uint64(0)

	for {
		if s.isShuttingDown() {
			break
		}

		conn, err := s.Listener.Accept()
		if err != nil {
			s.log.Debugf("Failed to accept connection: %s", err)
			continue
		}

		client := NewClient(s, id, conn)
		id++

		// ToServerChan is synchronous. We want to make sure the server knows
		// about the client before it starts hearing anything from its other
		// goroutines about the client.
		s.newEvent(Event{Type: NewClientEvent, Client: client})

		s.WG.Go(client.readLoop)
		s.WG.Go(client.writeLoop)
	}

	s.log.Info("Connection accepter shutting down.")
}

// Return true if the server is shutting down.
func (s *Server) isShuttingDown() bool {
	// No messages get sent to this channel, so if we receive a message on it,
	// then we know the channel was closed.
	select {
	case <-s.ShutdownChan:
		return true
	default:
		return false
	}
}

// Alarm sends a message to the server goroutine to wake it up.
// It sleeps and then repeats.
func (s *Server) alarm() {
	for {
		if s.isShuttingDown() {
			break
		}

		time.Sleep(s.Config.WakeupTime)

		s.newEvent(Event{Type: WakeUpEvent})
	}

	s.log.Info("Alarm shutting down.")
}

// checkAndPingClients looks at each connected client.
//
// If a registered client has been idle a short time, we send it a PING. If
// any client has been idle a long time, we kill its connection.
func (s *Server) checkAndPingClients() {
	now := time.Now()

	for _, client := range s.Clients {
		timeIdle := now.Sub(client.LastActivityTime)

		if timeIdle > s.Config.DeadTime {
			client.quit(fmt.Sprintf("Ping timeout: %d seconds",
				int(timeIdle.Seconds())))
			continue
		}

		if !client.Registered {
			continue
		}

		timeSincePing := now.Sub(client.LastPingTime)

		if timeIdle < s.Config.PingTime {
			continue
		}

		if timeSincePing < s.Config.PingTime {
			continue
		}

		client.messageFromServer("PING", []string{s.Config.ServerName})
		client.LastPingTime = now
	}
}

// newEvent tells the server something happened.
//
// Any goroutine can call this function.
//
// It will not block on shutdown as we select on the shutdown channel which
// we close when shutting down the server.
func (s *Server) newEvent(evt Event) {
	select {
	case s.ToServerChan <- evt:
	case <-s.ShutdownChan:
	}
}

// injectCommand queues a protocol command to run as if the given client sent
// it. The command goes through the normal dispatch path once the current
// command completes, so permission checks apply and numerics flow back to
// the impersonated client.
//
// Note: Only the event loop goroutine should call this.
func (s *Server) injectCommand(c *Client, m irc.Message) {
	s.pending = append(s.pending, Event{
		Type:     MessageFromClientEvent,
		ClientID: c.ID,
		Message:  m,
	})
}

// serverMessage builds a message originating from the server.
func (s *Server) serverMessage(command string, params []string) irc.Message {
	return irc.Message{
		Prefix:  s.Config.ServerName,
		Command: command,
		Params:  params,
	}
}

// broadcastToChannel delivers a message to every member of a channel,
// optionally excluding one client. All recipients see the event before any
// later event's bytes.
func (s *Server) broadcastToChannel(ch *Channel, m irc.Message, except *Client) {
	for id := range ch.Members {
		if except != nil && id == except.ID {
			continue
		}
		if member, exists := s.Clients[id]; exists {
			member.maybeQueueMessage(m)
		}
	}
}

// sendToNick delivers a message to a client by nick, if connected.
func (s *Server) sendToNick(nick string, m irc.Message) {
	if c := s.findClientByNick(nick); c != nil {
		c.maybeQueueMessage(m)
	}
}

func (s *Server) findClientByNick(nick string) *Client {
	id, exists := s.Nicks[canonicalizeNick(nick)]
	if !exists {
		return nil
	}
	return s.Clients[id]
}

func (s *Server) findChannel(name string) *Channel {
	return s.Channels[canonicalizeChannel(name)]
}

// getOrCreateChannel looks a channel up by canonicalized name, creating it
// with the given display name if it does not exist.
func (s *Server) getOrCreateChannel(name string) *Channel {
	key := canonicalizeChannel(name)
	if ch, exists := s.Channels[key]; exists {
		return ch
	}

	ch := newChannel(name)
	s.Channels[key] = ch
	return ch
}
