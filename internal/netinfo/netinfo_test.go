// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netinfo

import (
	"errors"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/go-socks/socks"
)

// TestClassifyAddr ensures addresses are mapped to the expected networks.
func TestClassifyAddr(t *testing.T) {
	tests := []struct {
		addr string
		want Network
	}{
		{"8.8.8.8:9377", IPv4},
		{"[2001:4860:4860::8888]:9377", IPv6},
		{"[fd87:d87e:eb43::1]:9377", Onion},
		{"expyuzz4wqqyqhjn.onion:9377", Onion},
		{"ukeu3k5oycgaauneqgtnvselmt4yemvoilkln7jpvamvfx7dnkdq.b32.i2p:0", I2P},
		{"seed.example.org:9377", IPv4},
		{"127.0.0.1:9377", Unroutable},
		{"10.1.2.3:9377", Unroutable},
		{"[fe80::1]:9377", Unroutable},
		{"0.0.0.0", Unroutable},
	}
	for _, test := range tests {
		if got := ClassifyAddr(test.addr); got != test.want {
			t.Errorf("%s: got %v, want %v", test.addr, got, test.want)
		}
	}
}

// TestParseNetwork ensures network names are parsed and the unroutable
// pseudo network is refused.
func TestParseNetwork(t *testing.T) {
	tests := []struct {
		name    string
		want    Network
		wantErr error
	}{
		{"ipv4", IPv4, nil},
		{"IPv6", IPv6, nil},
		{"onion", Onion, nil},
		{"tor", Onion, nil},
		{"i2p", I2P, nil},
		{"unroutable", Unroutable, ErrUnknownNetwork},
		{"cjdns", Unroutable, ErrUnknownNetwork},
	}
	for _, test := range tests {
		got, err := ParseNetwork(test.name)
		if !errors.Is(err, test.wantErr) || got != test.want {
			t.Errorf("%s: got %v (%v), want %v (%v)", test.name, got, err,
				test.want, test.wantErr)
		}
	}
}

// TestDescribe ensures the catalog reflects the live configuration and omits
// the unroutable pseudo network.
func TestDescribe(t *testing.T) {
	s := NewState()
	c := NewCatalog(s)

	want := []TransportInfo{
		{Network: IPv4, Name: "ipv4", Reachable: true},
		{Network: IPv6, Name: "ipv6", Reachable: true},
		{Network: Onion, Name: "onion"},
		{Network: I2P, Name: "i2p"},
	}
	if got := c.Describe(); !reflect.DeepEqual(got, want) {
		t.Fatalf("default catalog mismatch\ngot: %s\nwant: %s",
			spew.Sdump(got), spew.Sdump(want))
	}

	err := s.SetProxy(Onion, &socks.Proxy{Addr: "127.0.0.1:9050",
		TorIsolation: true})
	if err != nil {
		t.Fatalf("unexpected proxy error: %v", err)
	}
	s.LimitTo(Onion)
	want = []TransportInfo{
		{Network: IPv4, Name: "ipv4", Reachable: true, Limited: true},
		{Network: IPv6, Name: "ipv6", Reachable: true, Limited: true},
		{Network: Onion, Name: "onion", Reachable: true,
			Proxy: "127.0.0.1:9050", ProxyRandomizeCredentials: true},
		{Network: I2P, Name: "i2p", Limited: true},
	}
	if got := c.Describe(); !reflect.DeepEqual(got, want) {
		t.Fatalf("configured catalog mismatch\ngot: %s\nwant: %s",
			spew.Sdump(got), spew.Sdump(want))
	}

	if s.AllowsAddr("8.8.8.8:9377") {
		t.Fatal("limited network allowed")
	}
	if !s.AllowsAddr("expyuzz4wqqyqhjn.onion:9377") {
		t.Fatal("onion network refused")
	}
	if p, ok := s.ProxyForAddr("expyuzz4wqqyqhjn.onion:9377"); !ok || p.Addr != "127.0.0.1:9050" {
		t.Fatalf("unexpected onion proxy %v", p)
	}
}

// TestSetProxyInvalid ensures malformed proxies and networks are rejected.
func TestSetProxyInvalid(t *testing.T) {
	s := NewState()
	err := s.SetProxy(IPv4, &socks.Proxy{Addr: "127.0.0.1"})
	if !errors.Is(err, ErrInvalidProxy) {
		t.Fatalf("got err %v, want %v", err, ErrInvalidProxy)
	}
	err = s.SetProxy(Unroutable, &socks.Proxy{Addr: "127.0.0.1:9050"})
	if !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("got err %v, want %v", err, ErrUnknownNetwork)
	}
	if _, ok := s.Proxy(IPv4); ok {
		t.Fatal("invalid proxy was stored")
	}
}
