// Copyright (c) 2020-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// genalertkey generates a key pair for signing network alerts offline.  The
// public key is what nodes are configured to trust with --alertpubkey and the
// private key is what the sendalert RPC signs with.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anoncoin/anond/internal/alert"
	flags "github.com/jessevdk/go-flags"
)

type config struct {
	Prefix string `short:"p" long:"prefix" description:"hex prefix the uncompressed public key must start with"`
	Tries  int    `short:"n" long:"tries" description:"maximum number of keys to generate while searching for the prefix"`
	Out    string `short:"o" long:"out" description:"write the private key to this file instead of stdout"`
	Force  bool   `short:"f" long:"force" description:"overwrite an existing private key file"`
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

func main() {
	cfg := config{Tries: 100000}
	parser := flags.NewParser(&cfg, flags.Default)
	args, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if len(args) != 0 {
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}
	if strings.Trim(strings.ToLower(cfg.Prefix), "0123456789abcdef") != "" {
		fatalf("prefix %q is not hexadecimal\n", cfg.Prefix)
	}

	kp, found, err := alert.GenerateKeyPair(cfg.Prefix, cfg.Tries)
	if err != nil {
		fatalf("unable to generate key: %v\n", err)
	}
	if !found {
		fatalf("no public key starting with %q in %d tries\n", cfg.Prefix,
			cfg.Tries)
	}

	privHex := hex.EncodeToString(kp.PrivKey) + "\n"
	if cfg.Out != "" {
		flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if cfg.Force {
			flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		f, err := os.OpenFile(cfg.Out, flag, 0600)
		if err != nil {
			fatalf("%v\n", err)
		}
		if _, err := f.WriteString(privHex); err != nil {
			f.Close()
			fatalf("unable to write private key: %v\n", err)
		}
		if err := f.Close(); err != nil {
			fatalf("unable to write private key: %v\n", err)
		}
		fmt.Printf("alertpubkey=%s\n", hex.EncodeToString(kp.PubKey))
		return
	}

	fmt.Printf("alertpubkey=%s\n", hex.EncodeToString(kp.PubKey))
	fmt.Printf("privkey=%s", privHex)
}
