package main

import (
	"fmt"
	"net"
	"strings"

	"github.com/loykin/craftvisor"
	"github.com/loykin/craftvisor/pkg/client"
)

// resolveAPIURL picks --api-url, else the listener in --config, else the
// client default.
func resolveAPIURL(flags *GlobalFlags) (string, error) {
	if flags.APIUrl != "" {
		return strings.TrimRight(flags.APIUrl, "/"), nil
	}
	if flags.ConfigPath == "" {
		return client.DefaultConfig().BaseURL, nil
	}
	cfg, err := craftvisor.LoadConfig(flags.ConfigPath)
	if err != nil {
		return "", err
	}
	scheme := "http"
	if cfg.HTTP.TLS.Enabled {
		scheme = "https"
	}
	return scheme + "://" + dialable(cfg.HTTP.Listen) + strings.TrimRight(cfg.HTTP.BasePath, "/"), nil
}

// dialable turns a listen address such as ":8080" or "0.0.0.0:8080" into one a
// client can connect to.
func dialable(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// parsePairs parses key=value arguments.
func parsePairs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		out[k] = v
	}
	return out, nil
}
