// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/anoncoin/anond/internal/netinfo"
	"github.com/davecgh/go-spew/spew"
)

// testArgs returns arguments that confine the loaded configuration to a
// temporary home directory along with the provided extra arguments.
func testArgs(t *testing.T, extra ...string) []string {
	t.Helper()
	return append([]string{"--appdata=" + t.TempDir(), "--nofilelogging"},
		extra...)
}

// TestLoadConfigDefaults ensures the default configuration selects the main
// network and fills in the derived values.
func TestLoadConfigDefaults(t *testing.T) {
	args := testArgs(t)
	cfg, remaining, err := loadConfig("anond", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("unexpected remaining args: %v", remaining)
	}
	if cfg.params != &mainNetParams {
		t.Fatalf("unexpected network %q", cfg.params.Name)
	}
	if cfg.MaxPeers != defaultMaxPeers {
		t.Errorf("maxpeers: got %d, want %d", cfg.MaxPeers, defaultMaxPeers)
	}
	if cfg.BanThreshold != defaultBanThreshold {
		t.Errorf("banthreshold: got %d, want %d", cfg.BanThreshold,
			defaultBanThreshold)
	}
	wantListeners := []string{":9377"}
	if !reflect.DeepEqual(cfg.Listeners, wantListeners) {
		t.Errorf("listeners: got %v, want %v", cfg.Listeners, wantListeners)
	}
	for _, addr := range cfg.RPCListeners {
		if !strings.HasSuffix(addr, ":9376") || !isLoopbackListener(addr) {
			t.Errorf("unexpected default RPC listener %q", addr)
		}
	}
	home := strings.TrimPrefix(args[0], "--appdata=")
	wantDataDir := filepath.Join(home, defaultDataDirname, "mainnet")
	if cfg.DataDir != wantDataDir {
		t.Errorf("datadir: got %q, want %q", cfg.DataDir, wantDataDir)
	}
	if cfg.nodeDBPath != filepath.Join(wantDataDir, defaultNodeDBDirname) {
		t.Errorf("unexpected node db path %q", cfg.nodeDBPath)
	}
	if !reflect.DeepEqual(cfg.alertPubKeys, mainNetParams.AlertPubKeys) {
		t.Errorf("alert keys: got %v", cfg.alertPubKeys)
	}
	if !fileExists(filepath.Join(home, defaultConfigFilename)) {
		t.Error("default config file was not created")
	}
}

// TestLoadConfigNetworks ensures the network flags select the matching
// parameters and cannot be combined.
func TestLoadConfigNetworks(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    *params
		wantErr bool
	}{{
		name: "testnet",
		args: []string{"--testnet"},
		want: &testNetParams,
	}, {
		name: "regnet",
		args: []string{"--regnet"},
		want: &regNetParams,
	}, {
		name:    "testnet and regnet",
		args:    []string{"--testnet", "--regnet"},
		wantErr: true,
	}}

	for _, test := range tests {
		cfg, _, err := loadConfig("anond", testArgs(t, test.args...))
		if test.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", test.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		if cfg.params != test.want {
			t.Errorf("%s: got network %q, want %q", test.name,
				cfg.params.Name, test.want.Name)
			continue
		}
		wantListener := ":" + test.want.DefaultPort
		if len(cfg.Listeners) != 1 || cfg.Listeners[0] != wantListener {
			t.Errorf("%s: got listeners %v, want %s", test.name,
				cfg.Listeners, wantListener)
		}
	}
}

// TestLoadConfigErrors ensures invalid option combinations are rejected.
func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{{
		name: "addpeer with connect",
		args: []string{"--addpeer=10.0.0.1", "--connect=10.0.0.2"},
	}, {
		name: "negative maxpeers",
		args: []string{"--maxpeers=-1"},
	}, {
		name: "short ban duration",
		args: []string{"--banduration=500ms"},
	}, {
		name: "invalid whitelist",
		args: []string{"--whitelist=notanip"},
	}, {
		name: "rpcuser without rpcpass",
		args: []string{"--rpcuser=user"},
	}, {
		name: "notls on public interface",
		args: []string{"--notls", "--rpcuser=u", "--rpcpass=p",
			"--rpclisten=0.0.0.0"},
	}, {
		name: "no credentials on public interface",
		args: []string{"--rpclisten=10.0.0.1"},
	}, {
		name: "invalid alert key",
		args: []string{"--alertpubkey=zz"},
	}, {
		name: "onion with noonion",
		args: []string{"--onion=127.0.0.1:9050", "--noonion"},
	}, {
		name: "unknown onlynet",
		args: []string{"--onlynet=carrierpigeon"},
	}, {
		name: "invalid debug level",
		args: []string{"--debuglevel=verbose"},
	}, {
		name: "invalid metrics address",
		args: []string{"--metricslisten=localhost"},
	}, {
		name: "unknown option",
		args: []string{"--nosuchoption"},
	}}

	for _, test := range tests {
		_, _, err := loadConfig("anond", testArgs(t, test.args...))
		if err == nil {
			t.Errorf("%s: expected error", test.name)
		}
	}
}

// TestLoadConfigPeers ensures peer addresses are normalized and that the
// options implying no inbound connections disable listening.
func TestLoadConfigPeers(t *testing.T) {
	cfg, _, err := loadConfig("anond", testArgs(t, "--regnet",
		"--addpeer=10.0.0.1", "--addpeer=10.0.0.1:19477",
		"--addpeer=[::1]:1234", "--whitelist=192.168.1.0/24",
		"--whitelist=::1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantPeers := []string{"10.0.0.1:19477", "[::1]:1234"}
	if !reflect.DeepEqual(cfg.AddPeers, wantPeers) {
		t.Fatalf("addpeers: got %v, want %v", cfg.AddPeers, wantPeers)
	}
	if len(cfg.whitelists) != 2 {
		t.Fatalf("unexpected whitelists: %v", spew.Sdump(cfg.whitelists))
	}
	if !cfg.whitelists[0].Contains(net.ParseIP("192.168.1.77")) {
		t.Error("whitelist does not contain 192.168.1.77")
	}
	if ones, bits := cfg.whitelists[1].Mask.Size(); ones != 128 || bits != 128 {
		t.Errorf("single IPv6 whitelist mask is /%d of %d", ones, bits)
	}

	cfg, _, err = loadConfig("anond", testArgs(t, "--connect=10.0.0.2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.DisableListen || len(cfg.Listeners) != 0 {
		t.Errorf("connect did not disable listening: %v", cfg.Listeners)
	}
	if !reflect.DeepEqual(cfg.ConnectPeers, []string{"10.0.0.2:9377"}) {
		t.Errorf("unexpected connect peers %v", cfg.ConnectPeers)
	}
}

// TestLoadConfigNetworkSelection ensures the proxy and network selection
// options are reflected in the network state.
func TestLoadConfigNetworkSelection(t *testing.T) {
	cfg, _, err := loadConfig("anond", testArgs(t,
		"--proxy=127.0.0.1:9050", "--i2psam=127.0.0.1:4447",
		"--onlynet=onion", "--onlynet=i2p"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := cfg.netState
	if !state.IsLimited(netinfo.IPv4) || !state.IsLimited(netinfo.IPv6) {
		t.Error("IP networks should be limited with onlynet")
	}
	if state.IsLimited(netinfo.Onion) || state.IsLimited(netinfo.I2P) {
		t.Error("selected networks should not be limited")
	}
	if !state.IsReachable(netinfo.Onion) || !state.IsReachable(netinfo.I2P) {
		t.Error("proxied networks should be reachable")
	}
	if proxy, ok := state.Proxy(netinfo.Onion); !ok ||
		proxy.Addr != "127.0.0.1:9050" {
		t.Errorf("unexpected onion proxy %v", spew.Sdump(proxy))
	}
	if proxy, ok := state.Proxy(netinfo.I2P); !ok ||
		proxy.Addr != "127.0.0.1:4447" {
		t.Errorf("unexpected i2p proxy %v", spew.Sdump(proxy))
	}
	if !cfg.DisableListen {
		t.Error("proxy without listen should disable listening")
	}

	cfg, _, err = loadConfig("anond", testArgs(t, "--noonion"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.netState.IsReachable(netinfo.Onion) {
		t.Error("onion should not be reachable with noonion")
	}
}

// TestLoadConfigFile ensures options from the configuration file are applied
// and overridden by the command line.
func TestLoadConfigFile(t *testing.T) {
	home := t.TempDir()
	conf := filepath.Join(home, "custom.conf")
	contents := "[Application Options]\nmaxpeers=7\nbanthreshold=55\n"
	if err := os.WriteFile(conf, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := loadConfig("anond", []string{"--appdata=" + home,
		"--nofilelogging", "--configfile=" + conf, "--maxpeers=9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxPeers != 9 {
		t.Errorf("command line did not override maxpeers: %d", cfg.MaxPeers)
	}
	if cfg.BanThreshold != 55 {
		t.Errorf("banthreshold from file not applied: %d", cfg.BanThreshold)
	}
}
