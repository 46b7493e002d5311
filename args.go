package main

import (
	"flag"
	"fmt"
	"strconv"
)

// Args are command line arguments.
type Args struct {
	Port       int
	Password   string
	ConfigFile string
}

func getArgs() (Args, error) {
	configFile := flag.String("config", "",
		"Optional configuration file (key = value).")

	flag.Parse()

	if flag.NArg() != 2 {
		flag.PrintDefaults()
		return Args{}, fmt.Errorf("usage: ircserv [options] <port> <password>")
	}

	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil || port < 1 || port > 65535 {
		return Args{}, fmt.Errorf("invalid port: %s", flag.Arg(0))
	}

	return Args{
		Port:       port,
		Password:   flag.Arg(1),
		ConfigFile: *configFile,
	}, nil
}
