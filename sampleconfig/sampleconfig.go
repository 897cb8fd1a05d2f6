// Copyright (c) 2017-2022 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

import (
	_ "embed"
)

// sampleAnondConf is a string containing the commented example config for
// anond.
//
//go:embed sample-anond.conf
var sampleAnondConf string

// Anond returns a string containing the commented example config for anond.
func Anond() string {
	return sampleAnondConf
}
