// Package main provides the go-iresign CLI tool for re-signing iOS apps.
//
// For the library API, see the codesign subpackage:
//
//	import "github.com/aluedeke/go-iresign/pkg/codesign"
//
// # Installation
//
// Install the CLI:
//
//	go install github.com/aluedeke/go-iresign@latest
//
// Re-signing needs Apple's codesign tool and a keychain holding the signing identity.
package main
