// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/anoncoin/anond/internal/alert"
	"github.com/anoncoin/anond/internal/netinfo"
	"github.com/anoncoin/anond/internal/version"
	"github.com/anoncoin/anond/sampleconfig"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/go-socks/socks"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "anond.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "anond.log"
	defaultMaxPeers       = 125
	defaultBanDuration    = time.Hour * 24
	defaultBanThreshold   = 100
	defaultRPCMaxClients  = 10
	defaultAlertRetention = alert.DefaultRetention
	defaultRPCCertFile    = "rpc.cert"
	defaultRPCKeyFile     = "rpc.key"
	defaultNodeDBDirname  = "nodedb"
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("anond", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
	defaultRPCKey     = filepath.Join(defaultHomeDir, defaultRPCKeyFile)
	defaultRPCCert    = filepath.Join(defaultHomeDir, defaultRPCCertFile)
)

// config defines the configuration options for anond.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior.
	ShowVersion   bool   `short:"V" long:"version" description:"Display version information and exit"`
	HomeDir       string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile    string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir       string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir        string `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool   `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel    string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	// Network settings.
	TestNet bool `long:"testnet" description:"Use the test network"`
	RegNet  bool `long:"regnet" description:"Use the regression test network"`

	// Peer settings.
	Listeners        []string      `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 9377, testnet: 19377)"`
	DisableListen    bool          `long:"nolisten" description:"Disable listening for incoming connections"`
	AddPeers         []string      `short:"a" long:"addpeer" description:"Add a peer to connect with at startup"`
	ConnectPeers     []string      `long:"connect" description:"Connect only to the specified peers at startup"`
	MaxPeers         int           `long:"maxpeers" description:"Max number of inbound and outbound peers"`
	DedupConnections bool          `long:"dedupconnections" description:"Reject connections whose remote endpoint is already connected"`
	DisableBanning   bool          `long:"nobanning" description:"Disable banning of misbehaving peers"`
	BanDuration      time.Duration `long:"banduration" description:"How long to ban misbehaving peers. Valid time units are {s, m, h}. Minimum 1 second"`
	BanThreshold     uint32        `long:"banthreshold" description:"Maximum allowed ban score before disconnecting and banning misbehaving peers."`
	Whitelists       []string      `long:"whitelist" description:"Add an IP network or IP that will not be banned. (eg. 192.168.1.0/24 or ::1)"`
	UAComments       []string      `long:"useragentcomments" description:"Comment to add to the user agent -- See BIP 14 for more information"`

	// Proxy settings.
	Proxy          string   `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser      string   `long:"proxyuser" default-mask:"-" description:"Username for proxy server"`
	ProxyPass      string   `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	OnionProxy     string   `long:"onion" description:"Connect to tor hidden services via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	OnionProxyUser string   `long:"onionuser" default-mask:"-" description:"Username for onion proxy server"`
	OnionProxyPass string   `long:"onionpass" default-mask:"-" description:"Password for onion proxy server"`
	NoOnion        bool     `long:"noonion" description:"Disable connecting to tor hidden services"`
	TorIsolation   bool     `long:"torisolation" description:"Enable Tor stream isolation by randomizing user credentials for each connection"`
	I2PSAM         string   `long:"i2psam" description:"Reach I2P destinations through the SOCKS5 front of an I2P router (eg. 127.0.0.1:4447)"`
	OnlyNets       []string `long:"onlynet" description:"Only connect to nodes in the given network {ipv4, ipv6, onion, i2p} -- May be specified multiple times"`

	// Alert settings.
	AlertPubKeys   []string      `long:"alertpubkey" description:"Additional hex encoded public key trusted to sign alerts -- May be specified multiple times"`
	NoRelayAlerts  bool          `long:"norelayalerts" description:"Accept alerts without forwarding them to other peers"`
	AlertRetention time.Duration `long:"alertretention" description:"How long an expired alert is kept before it is evicted. Valid time units are {s, m, h}"`

	// RPC server options.
	RPCListeners  []string `long:"rpclisten" description:"Add an interface/port to listen for RPC connections (default port: 9376, testnet: 19376)"`
	RPCUser       string   `short:"u" long:"rpcuser" description:"Username for RPC connections"`
	RPCPass       string   `short:"P" long:"rpcpass" default-mask:"-" description:"Password for RPC connections"`
	RPCCert       string   `long:"rpccert" description:"File containing the certificate file"`
	RPCKey        string   `long:"rpckey" description:"File containing the certificate key"`
	RPCMaxClients int      `long:"rpcmaxclients" description:"Max number of RPC clients for standard connections"`
	DisableTLS    bool     `long:"notls" description:"Disable TLS for the RPC server -- NOTE: This is only allowed if the RPC server is bound to localhost"`
	DisableRPC    bool     `long:"norpc" description:"Disable built-in RPC server -- NOTE: Running without rpcuser/rpcpass is only allowed when the RPC server is bound to localhost"`

	// Metrics.
	MetricsListen string `long:"metricslisten" description:"Serve Prometheus metrics over HTTP on the given address"`

	// The following fields are derived from the above fields and are not
	// set by the user.
	params       *params
	whitelists   []net.IPNet
	alertPubKeys []string
	netState     *netinfo.State
	nodeDBPath   string
}

// errSuppressUsage signifies that an error that happened during the initial
// configuration phase should suppress the usage output since it was not caused
// by the user.
type errSuppressUsage string

// Error implements the error interface.
func (e errSuppressUsage) Error() string {
	return string(e)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]

	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeAddresses returns a new slice with all the passed peer addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, addr := range addrs {
		addr = normalizeAddress(addr, defaultPort)
		if _, ok := seen[addr]; !ok {
			result = append(result, addr)
			seen[addr] = struct{}{}
		}
	}
	return result
}

// isLoopbackListener returns whether the listen address only accepts
// connections from the local machine.
func isLoopbackListener(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// parseWhitelists converts the whitelist entries into IP networks.  Plain IP
// addresses are treated as networks with a full mask.
func parseWhitelists(entries []string) ([]net.IPNet, error) {
	whitelists := make([]net.IPNet, 0, len(entries))
	for _, addr := range entries {
		_, ipnet, err := net.ParseCIDR(addr)
		if err != nil {
			ip := net.ParseIP(addr)
			if ip == nil {
				return nil, fmt.Errorf("the whitelist value of '%s' is "+
					"invalid", addr)
			}
			var bits int
			if ip.To4() == nil {
				// IPv6
				bits = 128
			} else {
				bits = 32
			}
			ipnet = &net.IPNet{
				IP:   ip,
				Mask: net.CIDRMask(bits, bits),
			}
		}
		whitelists = append(whitelists, *ipnet)
	}
	return whitelists, nil
}

// newNetState builds the per network reachability and proxy configuration
// from the proxy and network selection options.
func newNetState(cfg *config) (*netinfo.State, error) {
	state := netinfo.NewState()

	if cfg.Proxy != "" {
		// Tor isolation flag means proxy credentials will be overridden
		// unless there is also an onion proxy configuration in which case
		// that one will be overridden.
		torIsolation := cfg.TorIsolation && cfg.OnionProxy == ""
		if torIsolation && (cfg.ProxyUser != "" || cfg.ProxyPass != "") {
			fmt.Fprintln(os.Stderr, "Tor isolation set -- "+
				"overriding specified proxy user credentials")
		}
		proxy := &socks.Proxy{
			Addr:         cfg.Proxy,
			Username:     cfg.ProxyUser,
			Password:     cfg.ProxyPass,
			TorIsolation: torIsolation,
		}
		nets := []netinfo.Network{netinfo.IPv4, netinfo.IPv6}
		if !cfg.NoOnion {
			nets = append(nets, netinfo.Onion)
		}
		for _, n := range nets {
			if err := state.SetProxy(n, proxy); err != nil {
				return nil, fmt.Errorf("invalid proxy: %w", err)
			}
		}
	}

	if cfg.OnionProxy != "" {
		// Tor isolation flag means onion proxy credentials will be
		// overridden.
		if cfg.TorIsolation &&
			(cfg.OnionProxyUser != "" || cfg.OnionProxyPass != "") {
			fmt.Fprintln(os.Stderr, "Tor isolation set -- "+
				"overriding specified onionproxy user credentials ")
		}
		proxy := &socks.Proxy{
			Addr:         cfg.OnionProxy,
			Username:     cfg.OnionProxyUser,
			Password:     cfg.OnionProxyPass,
			TorIsolation: cfg.TorIsolation,
		}
		if err := state.SetProxy(netinfo.Onion, proxy); err != nil {
			return nil, fmt.Errorf("invalid onion proxy: %w", err)
		}
	}

	if cfg.NoOnion {
		if err := state.SetProxy(netinfo.Onion, nil); err != nil {
			return nil, err
		}
		state.SetReachable(netinfo.Onion, false)
	}

	if cfg.I2PSAM != "" {
		proxy := &socks.Proxy{Addr: cfg.I2PSAM}
		if err := state.SetProxy(netinfo.I2P, proxy); err != nil {
			return nil, fmt.Errorf("invalid i2psam address: %w", err)
		}
	}

	if len(cfg.OnlyNets) > 0 {
		nets := make([]netinfo.Network, 0, len(cfg.OnlyNets))
		for _, name := range cfg.OnlyNets {
			n, err := netinfo.ParseNetwork(name)
			if err != nil {
				return nil, err
			}
			nets = append(nets, n)
		}
		state.LimitTo(nets...)
	}

	return state, nil
}

// createDefaultConfigFile copies the sample config to the given destination
// path.
func createDefaultConfigFile(destPath string) error {
	// Create the destination directory if it does not exist.
	err := os.MkdirAll(filepath.Dir(destPath), 0700)
	if err != nil {
		return err
	}

	return os.WriteFile(destPath, []byte(sampleconfig.Anond()), 0600)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// loadConfig initializes and parses the config using a config file and the
// passed command line arguments.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in anond functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig(appName string, args []string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:        defaultHomeDir,
		ConfigFile:     defaultConfigFile,
		DebugLevel:     defaultLogLevel,
		MaxPeers:       defaultMaxPeers,
		BanDuration:    defaultBanDuration,
		BanThreshold:   defaultBanThreshold,
		DataDir:        defaultDataDir,
		LogDir:         defaultLogDir,
		RPCKey:         defaultRPCKey,
		RPCCert:        defaultRPCCert,
		RPCMaxClients:  defaultRPCMaxClients,
		AlertRetention: defaultAlertRetention,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return nil, nil, errSuppressUsage(err.Error())
		}
	}

	// Show the version and exit if the version flag was specified.
	funcName := "loadConfig"
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS,
			runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory for anond if specified.  Since the home
	// directory is updated, other variables need to be updated to reflect
	// the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(cleanAndExpandPath(preCfg.HomeDir))

		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.RPCKey == defaultRPCKey {
			cfg.RPCKey = filepath.Join(cfg.HomeDir, defaultRPCKeyFile)
		} else {
			cfg.RPCKey = preCfg.RPCKey
		}
		if preCfg.RPCCert == defaultRPCCert {
			cfg.RPCCert = filepath.Join(cfg.HomeDir, defaultRPCCertFile)
		} else {
			cfg.RPCCert = preCfg.RPCCert
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	}

	// Create a default config file when one does not exist and the user did
	// not specify an override.
	if preCfg.ConfigFile == defaultConfigFile && !fileExists(cfg.ConfigFile) {
		err := createDefaultConfigFile(cfg.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a default config "+
				"file: %v\n", err)
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			err := fmt.Errorf("error parsing config file: %w", err)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			return nil, nil, errSuppressUsage(err.Error())
		}
		return nil, nil, err
	}

	// Choose the active network params based on the selected network.
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.params = &mainNetParams
	if cfg.TestNet {
		numNets++
		cfg.params = &testNetParams
	}
	if cfg.RegNet {
		numNets++
		cfg.params = &regNetParams
	}
	if numNets > 1 {
		str := "%s: the testnet and regnet params can't be used " +
			"together -- choose one of the two"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Append the network type to the data directory so it is "namespaced"
	// per network.  In addition to the block database, there are other
	// pieces of data that are saved to disk such as the added node list and
	// accepted alerts.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DataDir = filepath.Join(cfg.DataDir, cfg.params.Name)
	cfg.nodeDBPath = filepath.Join(cfg.DataDir, defaultNodeDBDirname)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized, the
	// logger variables may be used.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.params.Name)
	if !cfg.NoFileLogging {
		logPath := filepath.Join(cfg.LogDir, defaultLogFilename)
		if err := initLogRotator(logPath); err != nil {
			return nil, nil, errSuppressUsage(err.Error())
		}
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Validate the peer limits.
	if cfg.MaxPeers < 0 {
		str := "%s: the maxpeers option may not be less than 0 -- parsed " +
			"[%d]"
		err := fmt.Errorf(str, funcName, cfg.MaxPeers)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	if cfg.BanDuration < time.Second {
		str := "%s: the banduration option may not be less than 1s -- " +
			"parsed [%v]"
		err := fmt.Errorf(str, funcName, cfg.BanDuration)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	if cfg.AlertRetention < 0 {
		str := "%s: the alertretention option may not be negative -- " +
			"parsed [%v]"
		err := fmt.Errorf(str, funcName, cfg.AlertRetention)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Validate any given whitelisted IP addresses and networks.
	cfg.whitelists, err = parseWhitelists(cfg.Whitelists)
	if err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// --addpeer and --connect do not mix.
	if len(cfg.AddPeers) > 0 && len(cfg.ConnectPeers) > 0 {
		str := "%s: the --addpeer and --connect options can not be mixed"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// --proxy or --connect without --listen disables listening.
	if (cfg.Proxy != "" || len(cfg.ConnectPeers) > 0) &&
		len(cfg.Listeners) == 0 {
		cfg.DisableListen = true
	}

	// Add the default listener if none were specified.  The default
	// listener is all addresses on the listen port for the network we are
	// to connect to.
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{
			net.JoinHostPort("", cfg.params.DefaultPort),
		}
	}
	if cfg.DisableListen {
		cfg.Listeners = nil
	}

	// Only one of the two RPC credentials being set is a user error.
	if (cfg.RPCUser == "") != (cfg.RPCPass == "") {
		str := "%s: the rpcuser and rpcpass options must be specified " +
			"together"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Default RPC to listen on localhost only.
	if !cfg.DisableRPC && len(cfg.RPCListeners) == 0 {
		addrs, err := net.LookupHost("localhost")
		if err != nil || len(addrs) == 0 {
			addrs = []string{"127.0.0.1", "::1"}
		}
		cfg.RPCListeners = make([]string, 0, len(addrs))
		for _, addr := range addrs {
			addr = net.JoinHostPort(addr, cfg.params.rpcPort)
			cfg.RPCListeners = append(cfg.RPCListeners, addr)
		}
	}

	if cfg.RPCMaxClients < 0 {
		str := "%s: the rpcmaxclients option may not be less than 0 " +
			"-- parsed [%d]"
		err := fmt.Errorf(str, funcName, cfg.RPCMaxClients)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Add default port to all listener addresses if needed and remove
	// duplicate addresses.
	cfg.Listeners = normalizeAddresses(cfg.Listeners, cfg.params.DefaultPort)
	cfg.RPCListeners = normalizeAddresses(cfg.RPCListeners,
		cfg.params.rpcPort)

	// Only allow TLS to be disabled, and the RPC server to run without
	// credentials, when the RPC server is bound to localhost addresses.
	if !cfg.DisableRPC && (cfg.DisableTLS || cfg.RPCUser == "") {
		for _, addr := range cfg.RPCListeners {
			if isLoopbackListener(addr) {
				continue
			}
			str := "%s: the --notls option and running without rpcuser " +
				"and rpcpass are only allowed when the RPC server is " +
				"bound to localhost -- %s is not a loopback address"
			err := fmt.Errorf(str, funcName, addr)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	}

	// Add default port to all added peer addresses if needed and remove
	// duplicate addresses.
	cfg.AddPeers = normalizeAddresses(cfg.AddPeers, cfg.params.DefaultPort)
	cfg.ConnectPeers = normalizeAddresses(cfg.ConnectPeers,
		cfg.params.DefaultPort)

	// Combine the network alert keys with any additional keys and ensure
	// every key parses.
	cfg.alertPubKeys = append(append([]string(nil),
		cfg.params.AlertPubKeys...), cfg.AlertPubKeys...)
	if _, err := alert.ParseKeyAuthority(cfg.alertPubKeys); err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// The onion and noonion options are mutually exclusive.
	if cfg.OnionProxy != "" && cfg.NoOnion {
		str := "%s: the --onion and --noonion options may not be " +
			"activated at the same time"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	cfg.netState, err = newNetState(&cfg)
	if err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	cfg.MetricsListen = strings.TrimSpace(cfg.MetricsListen)
	if cfg.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsListen); err != nil {
			str := "%s: the metricslisten address %q is invalid: %w"
			err := fmt.Errorf(str, funcName, cfg.MetricsListen, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		anodLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
