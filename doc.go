// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
anond is the networking and alert relay node of Anoncoin written in Go.

It maintains connections to other nodes over IPv4, IPv6, Tor and I2P, floods
signed network alerts to every connected peer exactly once, and exposes the
peer, network and alert state over a JSON-RPC interface.

The following section provides a usage overview which enumerates the flags.  The
long form of all of these options (except -C) can be specified in a
configuration file that is automatically parsed when anond starts up.  By
default, the configuration file is located at ~/.anond/anond.conf on
POSIX-style operating systems and %LOCALAPPDATA%\anond\anond.conf on Windows.
The -C (--configfile) flag, as shown below, can be used to override this
location.

Usage:

	anond [OPTIONS]

Application Options:

	-V, --version                Display version information and exit
	-A, --appdata=               Path to application home directory
	-C, --configfile=            Path to configuration file
	-b, --datadir=               Directory to store data
	    --logdir=                Directory to log output
	    --nofilelogging          Disable file logging
	-d, --debuglevel=            Logging level for all subsystems {trace, debug,
	                             info, warn, error, critical} -- You may also
	                             specify
	                             <subsystem>=<level>,<subsystem2>=<level>,... to
	                             set the log level for individual subsystems --
	                             Use show to list available subsystems (info)
	    --testnet                Use the test network
	    --regnet                 Use the regression test network
	    --listen=                Add an interface/port to listen for connections
	                             (default all interfaces port: 9377, testnet:
	                             19377)
	    --nolisten               Disable listening for incoming connections
	-a, --addpeer=               Add a peer to connect with at startup
	    --connect=               Connect only to the specified peers at startup
	    --maxpeers=              Max number of inbound and outbound peers
	                             (default: 125)
	    --dedupconnections       Reject connections whose remote endpoint is
	                             already connected
	    --nobanning              Disable banning of misbehaving peers
	    --banduration=           How long to ban misbehaving peers. Valid time
	                             units are {s, m, h}. Minimum 1 second
	                             (default: 24h0m0s)
	    --banthreshold=          Maximum allowed ban score before disconnecting
	                             and banning misbehaving peers. (default: 100)
	    --whitelist=             Add an IP network or IP that will not be banned.
	                             (eg. 192.168.1.0/24 or ::1)
	    --useragentcomments=     Comment to add to the user agent -- See BIP 14
	                             for more information
	    --proxy=                 Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)
	    --proxyuser=             Username for proxy server
	    --proxypass=             Password for proxy server
	    --onion=                 Connect to tor hidden services via SOCKS5 proxy
	                             (eg. 127.0.0.1:9050)
	    --onionuser=             Username for onion proxy server
	    --onionpass=             Password for onion proxy server
	    --noonion                Disable connecting to tor hidden services
	    --torisolation           Enable Tor stream isolation by randomizing user
	                             credentials for each connection
	    --i2psam=                Reach I2P destinations through the SOCKS5 front
	                             of an I2P router (eg. 127.0.0.1:4447)
	    --onlynet=               Only connect to nodes in the given network
	                             {ipv4, ipv6, onion, i2p} -- May be specified
	                             multiple times
	    --alertpubkey=           Additional hex encoded public key trusted to
	                             sign alerts -- May be specified multiple times
	    --norelayalerts          Accept alerts without forwarding them to other
	                             peers
	    --alertretention=        How long an expired alert is kept before it is
	                             evicted. Valid time units are {s, m, h}
	                             (default: 24h0m0s)
	    --rpclisten=             Add an interface/port to listen for RPC
	                             connections (default port: 9376, testnet:
	                             19376)
	-u, --rpcuser=               Username for RPC connections
	-P, --rpcpass=               Password for RPC connections
	    --rpccert=               File containing the certificate file
	    --rpckey=                File containing the certificate key
	    --rpcmaxclients=         Max number of RPC clients for standard
	                             connections (default: 10)
	    --notls                  Disable TLS for the RPC server -- NOTE: This is
	                             only allowed if the RPC server is bound to
	                             localhost
	    --norpc                  Disable built-in RPC server -- NOTE: Running
	                             without rpcuser/rpcpass is only allowed when the
	                             RPC server is bound to localhost
	    --metricslisten=         Serve Prometheus metrics over HTTP on the given
	                             address

Help Options:

	-h, --help                   Show this help message
*/
package main
