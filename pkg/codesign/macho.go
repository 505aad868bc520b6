package codesign

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/blacktop/go-macho"
	log "github.com/sirupsen/logrus"
)

// MachOTool reads the signed entitlements straight from the code signature of
// the bundle's main executable, so introspection works without codesign.
// Signing is delegated to Signer.
type MachOTool struct {
	Signer Tool
}

// Introspect returns the XML entitlements blob of the main executable's signature.
// Fat binaries are read from their last slice. Unsigned executables yield no output.
func (t *MachOTool) Introspect(ctx context.Context, bundlePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &IntrospectionError{Path: bundlePath, Err: err}
	}

	execName, err := GetAppExecutableName(bundlePath)
	if err != nil {
		return nil, &IntrospectionError{Path: bundlePath, Err: err}
	}
	execPath := filepath.Join(bundlePath, execName)

	var m *macho.File
	fat, err := macho.OpenFat(execPath)
	switch {
	case err == nil:
		defer fat.Close()
		m = fat.Arches[len(fat.Arches)-1].File
	case errors.Is(err, macho.ErrNotFat):
		m, err = macho.Open(execPath)
		if err != nil {
			return nil, &IntrospectionError{Path: bundlePath, Err: fmt.Errorf("failed to parse %s: %w", execName, err)}
		}
		defer m.Close()
	default:
		return nil, &IntrospectionError{Path: bundlePath, Err: fmt.Errorf("failed to parse %s: %w", execName, err)}
	}

	cs := m.CodeSignature()
	if cs == nil {
		log.WithField("binary", execPath).Debugf("executable is not signed")
		return nil, nil
	}
	if cs.Entitlements == "" && len(cs.EntitlementsDER) > 0 {
		log.WithField("binary", execPath).Warnf("signature only carries DER entitlements, treating as none")
	}
	return []byte(cs.Entitlements), nil
}

// Sign hands the request to the configured signer
func (t *MachOTool) Sign(ctx context.Context, opts SignOptions) error {
	if t.Signer == nil {
		return &SigningFailedError{Path: opts.BundlePath, ExitCode: -1, Err: fmt.Errorf("no signer configured")}
	}
	return t.Signer.Sign(ctx, opts)
}
