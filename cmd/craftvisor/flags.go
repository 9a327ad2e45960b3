package main

import "time"

const defaultAPITimeout = 30 * time.Second

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
	CACert     string
}

type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
	AutoStart bool
}

type InstallFlags struct {
	URL      string
	Filename string
}
