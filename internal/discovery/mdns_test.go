package discovery

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	shutdown int
}

func (s *fakeServer) Shutdown() { s.shutdown++ }

type registration struct {
	instance, service, domain string
	port                      int
	txt                       []string
}

func newFakeAdvertiser(regs *[]registration, servers *[]*fakeServer, fail error) *Advertiser {
	return &Advertiser{register: func(instance, service, domain string, port int, txt []string, _ []net.Interface) (server, error) {
		if fail != nil {
			return nil, fail
		}
		*regs = append(*regs, registration{instance, service, domain, port, txt})
		s := &fakeServer{}
		*servers = append(*servers, s)
		return s, nil
	}}
}

func TestTXT(t *testing.T) {
	assert.Equal(t,
		[]string{"path=/index.json", "keys=4", "boot=abc"},
		TXT(Info{Keys: 4, BootID: "abc"}))
	assert.Equal(t,
		[]string{"path=/index.json", "keys=1"},
		TXT(Info{Keys: 1}))
}

func TestListenPort(t *testing.T) {
	tests := []struct {
		listen string
		want   int
		ok     bool
	}{
		{":80", 80, true},
		{"0.0.0.0:8080", 8080, true},
		{"[::1]:9000", 9000, true},
		{"localhost", 0, false},
		{":http", 0, false},
		{":0", 0, false},
		{":70000", 0, false},
	}
	for _, tt := range tests {
		got, err := ListenPort(tt.listen)
		if tt.ok {
			require.NoError(t, err, tt.listen)
			assert.Equal(t, tt.want, got, tt.listen)
		} else {
			assert.ErrorIs(t, err, ErrNoPort, tt.listen)
		}
	}
}

func TestAdvertiseRegistersService(t *testing.T) {
	var regs []registration
	var servers []*fakeServer
	a := newFakeAdvertiser(&regs, &servers, nil)

	require.NoError(t, a.Advertise(Info{Instance: "key-timer", Listen: ":80", Keys: 4, BootID: "b1"}))
	require.Len(t, regs, 1)
	assert.Equal(t, "key-timer", regs[0].instance)
	assert.Equal(t, "_http._tcp", regs[0].service)
	assert.Equal(t, "local.", regs[0].domain)
	assert.Equal(t, 80, regs[0].port)
	assert.Contains(t, regs[0].txt, "boot=b1")
}

func TestAdvertiseReplacesPrevious(t *testing.T) {
	var regs []registration
	var servers []*fakeServer
	a := newFakeAdvertiser(&regs, &servers, nil)

	require.NoError(t, a.Advertise(Info{Instance: "a", Listen: ":80", Keys: 1}))
	require.NoError(t, a.Advertise(Info{Instance: "b", Listen: ":81", Keys: 1}))
	require.Len(t, servers, 2)
	assert.Equal(t, 1, servers[0].shutdown)
	assert.Equal(t, 0, servers[1].shutdown)

	a.Stop()
	a.Stop()
	assert.Equal(t, 1, servers[1].shutdown)
}

func TestAdvertiseBadListen(t *testing.T) {
	var regs []registration
	var servers []*fakeServer
	a := newFakeAdvertiser(&regs, &servers, nil)

	assert.ErrorIs(t, a.Advertise(Info{Listen: "nope"}), ErrNoPort)
	assert.Empty(t, regs)
}

func TestAdvertiseRegisterError(t *testing.T) {
	var regs []registration
	var servers []*fakeServer
	boom := errors.New("no multicast")
	a := newFakeAdvertiser(&regs, &servers, boom)

	assert.ErrorIs(t, a.Advertise(Info{Listen: ":80"}), boom)
	a.Stop()
}
