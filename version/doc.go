// Package version reports build information for the bytepipe binary.
//
// Version, git commit, branch and build time are set at compile time:
//
//	go build -ldflags "-X github.com/kbukum/bytepipe/version.Version=1.0.0" ./cmd/bytepipe
//
// Unset values fall back to the VCS settings the Go toolchain embeds.
package version
