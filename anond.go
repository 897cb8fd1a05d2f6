// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/anoncoin/anond/internal/nodedb"
	"github.com/anoncoin/anond/internal/version"
)

var cfg *config

// anondMain is the real main function for anond.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func anondMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	tcfg, _, err := loadConfig(appName, os.Args[1:])
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the RPC server.
	ctx := shutdownListener()
	defer anodLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	anodLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	anodLog.Infof("Home dir: %s", cfg.HomeDir)
	anodLog.Infof("Active network: %s", cfg.params.Name)
	if cfg.NoFileLogging {
		anodLog.Info("File logging disabled")
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Open the database holding the added nodes and accepted alerts.
	db, err := nodedb.Open(cfg.nodeDBPath)
	if err != nil {
		anodLog.Errorf("Unable to open node database: %v", err)
		return err
	}
	defer func() {
		anodLog.Infof("Gracefully shutting down the node database...")
		db.Close()
	}()

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Create server and start it.
	svr, err := newServer(cfg.Listeners, db, cfg.params)
	if err != nil {
		anodLog.Errorf("Unable to start server: %v", err)
		return err
	}

	if shutdownRequested(ctx) {
		return nil
	}

	if err := svr.Run(ctx); err != nil {
		anodLog.Errorf("%v", err)
		return err
	}
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := anondMain(); err != nil {
		os.Exit(1)
	}
}
