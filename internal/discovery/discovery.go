// Package discovery advertises relays on the local network over mDNS and
// finds them again from the client side.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

const (
	Service = "_murmur-relay._tcp"
	Domain  = "local."
)

// Relay is one relay found on the network.
type Relay struct {
	Instance string
	URL      string
	Version  string
}

// Advertise registers a relay listening on port with the websocket endpoint
// at path. The returned function withdraws the advertisement.
func Advertise(instance string, port int, path, version string, log logrus.FieldLogger) (func(), error) {
	txt := []string{"path=" + path}
	if version != "" {
		txt = append(txt, "version="+version)
	}
	server, err := zeroconf.Register(instance, Service, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	log.WithFields(logrus.Fields{"instance": instance, "service": Service, "port": port}).Info("mdns: advertised relay")
	return server.Shutdown, nil
}

// Browse collects relays until ctx is done.
func Browse(ctx context.Context) ([]Relay, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry)
	var relays []Relay
	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := map[string]bool{}
		for e := range entries {
			r, ok := FromEntry(e)
			if !ok || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			relays = append(relays, r)
		}
	}()
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-ctx.Done()
	<-done
	return relays, nil
}

// FromEntry turns a resolved service entry into a relay URL. Entries without
// an address are skipped.
func FromEntry(e *zeroconf.ServiceEntry) (Relay, bool) {
	if e == nil || e.Port <= 0 {
		return Relay{}, false
	}
	var host string
	switch {
	case len(e.AddrIPv4) > 0:
		host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		host = e.AddrIPv6[0].String()
	default:
		return Relay{}, false
	}
	path, version := "/ws", ""
	for _, kv := range e.Text {
		k, v, _ := strings.Cut(kv, "=")
		switch k {
		case "path":
			if strings.HasPrefix(v, "/") {
				path = v
			}
		case "version":
			version = v
		}
	}
	return Relay{
		Instance: e.Instance,
		URL:      "ws://" + net.JoinHostPort(host, strconv.Itoa(e.Port)) + path,
		Version:  version,
	}, true
}
