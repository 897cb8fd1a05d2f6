// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version houses the version of anond and the user agent it
// advertises to peers.
package version

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
)

// AppName is the name advertised in the user agent.
const AppName = "anond"

// semanticAlphabet defines the allowed characters for the pre-release and
// build metadata portions of a semantic version string.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

// semverRE splits a semantic version string into its constituent parts.
var semverRE = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*` +
	`[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

var (
	// Version is the application version per the semantic versioning 2.0.0
	// spec.  Release builds override it with:
	// '-ldflags "-X github.com/anoncoin/anond/internal/version.Version=fullsemver"'
	//
	// It MUST be a full semantic version or the package panics at init.
	Version = "0.9.7-pre"

	// The following are set by init from Version.
	Major         uint
	Minor         uint
	Patch         uint
	PreRelease    string
	BuildMetadata string
)

// parseSemVer parses the components of a semantic version string.
func parseSemVer(s string) (major, minor, patch uint, pre, build string, err error) {
	m := semverRE.FindStringSubmatch(s)
	if m == nil {
		err = fmt.Errorf("malformed version string %q: does not conform to "+
			"semver specification", s)
		return 0, 0, 0, "", "", err
	}

	var parts [3]uint
	for i, name := range []string{"major", "minor", "patch"} {
		v, err := strconv.ParseUint(m[i+1], 10, 0)
		if err != nil {
			return 0, 0, 0, "", "", fmt.Errorf("malformed semver %s: %w",
				name, err)
		}
		parts[i] = uint(v)
	}
	return parts[0], parts[1], parts[2], m[4], m[5], nil
}

func init() {
	var err error
	Major, Minor, Patch, PreRelease, BuildMetadata, err = parseSemVer(Version)
	if err != nil {
		panic(err)
	}
	if BuildMetadata == "" {
		BuildMetadata = vcsCommitID()
		if BuildMetadata != "" {
			Version = fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
			if PreRelease != "" {
				Version += "-" + PreRelease
			}
			Version += "+" + BuildMetadata
		}
	}
}

// vcsCommitID returns the abbreviated commit the binary was built from, if
// the toolchain recorded it.
func vcsCommitID() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var vcs, revision string
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs":
			vcs = bs.Value
		case "vcs.revision":
			revision = bs.Value
		}
	}
	if vcs == "" {
		return ""
	}
	if vcs == "git" && len(revision) > 9 {
		revision = revision[:9]
	}
	return revision
}

// String returns the application version.
func String() string {
	return Version
}

// NormalizeString returns the passed string stripped of all characters which
// are not valid in the pre-release and build metadata of a semantic version.
func NormalizeString(str string) string {
	var b strings.Builder
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UserAgent returns the BIP14 user agent of the daemon, such as
// "/anond:0.9.7(comment1; comment2)/".  Comments are normalized and empty
// ones dropped.
func UserAgent(comments ...string) string {
	var cleaned []string
	for _, c := range comments {
		if c = NormalizeString(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	ua := fmt.Sprintf("/%s:%d.%d.%d", AppName, Major, Minor, Patch)
	if len(cleaned) > 0 {
		ua += "(" + strings.Join(cleaned, "; ") + ")"
	}
	return ua + "/"
}

// ClientVersion returns the version as the single integer reported by the
// network info RPC, e.g. 0.9.7 is 90700.
func ClientVersion() int32 {
	return int32(Major*1000000 + Minor*10000 + Patch*100)
}
