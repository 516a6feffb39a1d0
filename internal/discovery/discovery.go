// Package discovery announces and finds moodpad relays on the local network
// over mDNS.
package discovery

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_moodpad._tcp"
	Domain  = "local."
)

// Relay is a discovered relay endpoint.
type Relay struct {
	Instance string
	Host     string
	Port     int
	Version  string
}

// URL is the websocket base the transport dials.
func (r Relay) URL() string {
	return fmt.Sprintf("ws://%s:%d", r.Host, r.Port)
}

// Announcer keeps a relay registered until Close.
type Announcer struct {
	server *zeroconf.Server
}

// Announce registers instance on port. version ends up in the TXT record.
func Announce(instance string, port int, version string) (*Announcer, error) {
	if port <= 0 {
		return nil, fmt.Errorf("announce relay: invalid port %d", port)
	}
	server, err := zeroconf.Register(instance, Service, Domain, port, []string{"v=" + version}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}
	log.Printf("discovery: announcing %s on port %d", instance, port)
	return &Announcer{server: server}, nil
}

func (a *Announcer) Close() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Browse collects relays until ctx is done.
func Browse(ctx context.Context) ([]Relay, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("init mdns resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan []Relay, 1)
	go func() {
		var relays []Relay
		for entry := range entries {
			if r, ok := fromEntry(entry); ok {
				relays = append(relays, r)
			}
		}
		found <- relays
	}()
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse mdns: %w", err)
	}
	<-ctx.Done()
	return <-found, nil
}

func fromEntry(entry *zeroconf.ServiceEntry) (Relay, bool) {
	if entry == nil {
		return Relay{}, false
	}
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = "[" + entry.AddrIPv6[0].String() + "]"
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return Relay{}, false
	}
	return Relay{
		Instance: entry.Instance,
		Host:     host,
		Port:     entry.Port,
		Version:  txtValue(entry.Text, "v"),
	}, true
}

func txtValue(records []string, key string) string {
	for _, rec := range records {
		if k, v, ok := strings.Cut(rec, "="); ok && k == key {
			return v
		}
	}
	return ""
}

// PortOf extracts the port from a listen address such as ":8787".
func PortOf(addr string) (int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return 0, fmt.Errorf("no port in %q", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return 0, fmt.Errorf("parse port in %q: %w", addr, err)
	}
	return port, nil
}
