package main

import (
	"fmt"
	"time"

	"github.com/horgh/config"
)

// Config holds a server's configuration.
type Config struct {
	ListenHost string
	ServerName string

	// Nick the helper bot speaks as.
	BotNick string

	// Directory where the file transfer engine stores its copies. Created
	// under the working directory on first use.
	UploadsDir string

	// Period of time to wait before waking the server up (maximum).
	WakeupTime time.Duration

	// Period of time a client can be idle before we send it a PING.
	PingTime time.Duration

	// Period of time a client can be idle before we consider it dead.
	DeadTime time.Duration
}

func defaultConfig() Config {
	return Config{
		ListenHost: "",
		ServerName: "ircserv",
		BotNick:    "lily",
		UploadsDir: "uploads",
		WakeupTime: 20 * time.Second,
		PingTime:   60 * time.Second,
		DeadTime:   240 * time.Second,
	}
}

// checkAndParseConfig loads server configuration.
//
// Every key is optional and has a default, so the file itself is optional
// too. We parse duration values into their alternate representations.
func (s *Server) checkAndParseConfig(file string) error {
	s.Config = defaultConfig()

	if file == "" {
		return nil
	}

	configMap, err := config.ReadStringMap(file)
	if err != nil {
		return err
	}

	if v, exists := configMap["listen-host"]; exists {
		s.Config.ListenHost = v
	}

	if v, exists := configMap["server-name"]; exists {
		if len(v) == 0 {
			return fmt.Errorf("server-name must not be blank")
		}
		s.Config.ServerName = v
	}

	if v, exists := configMap["bot-nick"]; exists {
		if !isValidNick(v) {
			return fmt.Errorf("bot-nick is not a valid nickname: %s", v)
		}
		s.Config.BotNick = v
	}

	if v, exists := configMap["uploads-dir"]; exists {
		if len(v) == 0 {
			return fmt.Errorf("uploads-dir must not be blank")
		}
		s.Config.UploadsDir = v
	}

	durations := []struct {
		key  string
		dest *time.Duration
	}{
		{"wakeup-time", &s.Config.WakeupTime},
		{"ping-time", &s.Config.PingTime},
		{"dead-time", &s.Config.DeadTime},
	}

	for _, d := range durations {
		v, exists := configMap[d.key]
		if !exists {
			continue
		}

		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s is in invalid format: %s", d.key, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive", d.key)
		}
		*d.dest = parsed
	}

	return nil
}
