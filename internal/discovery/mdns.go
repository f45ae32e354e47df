// Package discovery advertises the status page over mDNS.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

const (
	ServiceType = "_http._tcp"
	Domain      = "local."
	StatusPath  = "/index.json"
)

// ErrNoPort is returned when no port can be derived from the listen address.
var ErrNoPort = errors.New("discovery: listen address has no port")

// Info describes the advertised status server.
type Info struct {
	Instance string
	Listen   string // HTTP listen address, e.g. ":80"
	Keys     int
	BootID   string
}

// server is the part of *zeroconf.Server the advertiser uses.
type server interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (server, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (server, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// Advertiser holds one mDNS registration.
type Advertiser struct {
	register registerFunc

	mu     sync.Mutex
	server server
}

// NewAdvertiser creates an advertiser backed by zeroconf.
func NewAdvertiser() *Advertiser {
	return &Advertiser{register: zeroconfRegister}
}

// Advertise registers the status service, replacing any earlier registration.
func (a *Advertiser) Advertise(info Info) error {
	port, err := ListenPort(info.Listen)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	srv, err := a.register(info.Instance, ServiceType, Domain, port, TXT(info), nil)
	if err != nil {
		return fmt.Errorf("register %s service: %w", ServiceType, err)
	}
	a.server = srv
	return nil
}

// Stop withdraws the registration. It is safe to call more than once.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// TXT builds the TXT records for info.
func TXT(info Info) []string {
	txt := []string{
		"path=" + StatusPath,
		"keys=" + strconv.Itoa(info.Keys),
	}
	if info.BootID != "" {
		txt = append(txt, "boot="+info.BootID)
	}
	return txt
}

// ListenPort extracts the TCP port from an HTTP listen address such as
// ":80" or "0.0.0.0:8080".
func ListenPort(listen string) (int, error) {
	_, p, err := net.SplitHostPort(listen)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrNoPort, listen, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrNoPort, listen)
	}
	return port, nil
}
