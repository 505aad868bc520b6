package codesign

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// Request contains everything needed to re-sign one application
type Request struct {
	Application *Application
	Profile     *ProvisioningProfile // the provisioning profile to embed
	Identity    string               // passed to the signing tool as-is
	DryRun      bool                 // leave the bundle untouched and ask the tool to only validate
}

// Resigner drives the re-signing pipeline. It holds no locks: callers must not
// re-sign the same bundle from several goroutines or processes at once.
type Resigner struct {
	Tool Tool
	// TempDir receives the temporary entitlements file, os.TempDir() when empty
	TempDir string
}

// NewResigner returns a Resigner that signs with tool
func NewResigner(tool Tool) *Resigner {
	return &Resigner{Tool: tool}
}

// Recodesign embeds the request's profile into the application and re-signs it
// with the merged entitlements.
//
// Steps run in order and the first failure aborts the rest. A replaced
// embedded.mobileprovision is not restored when a later step fails, which leaves
// the bundle with the new profile and a stale signature.
func (r *Resigner) Recodesign(ctx context.Context, req Request) error {
	if req.Application == nil {
		return fmt.Errorf("application is required")
	}
	if req.Profile == nil {
		return fmt.Errorf("provisioning profile is required")
	}
	if req.Identity == "" {
		return fmt.Errorf("signing identity is required")
	}

	app := req.Application
	logger := log.WithFields(log.Fields{"app": app.BundlePath, "profile": req.Profile.SourcePath, "dryrun": req.DryRun})

	if req.Profile.IsExpired() {
		logger.Warnf("provisioning profile %q expired on %s", req.Profile.Name, req.Profile.ExpirationDate.Format("2006-01-02"))
	}

	if !req.DryRun {
		dst := app.EmbeddedProfilePath()
		if err := replaceFile(req.Profile.SourcePath, dst); err != nil {
			return &ProfileWriteError{Path: dst, Err: err}
		}
		logger.Debugf("embedded provisioning profile replaced")
	}

	entitlements, err := GenerateEntitlements(ctx, r.Tool, req.Profile.Entitlements, app)
	if err != nil {
		return err
	}

	entitlementsPath, err := r.writeEntitlements(entitlements)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(entitlementsPath); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warnf("failed to remove %s", entitlementsPath)
		}
	}()

	return r.Tool.Sign(ctx, SignOptions{
		BundlePath:       app.BundlePath,
		Identity:         req.Identity,
		EntitlementsPath: entitlementsPath,
		DryRun:           req.DryRun,
	})
}

// writeEntitlements stores entitlements in a new uniquely named .plist file and
// returns its path. The file is closed when this returns; it is removed again if
// writing fails.
func (r *Resigner) writeEntitlements(entitlements map[string]interface{}) (string, error) {
	data, err := EntitlementsToXML(entitlements)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(r.TempDir, "entitlements-*.plist")
	if err != nil {
		return "", fmt.Errorf("failed to create entitlements file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write entitlements file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write entitlements file: %w", err)
	}
	return f.Name(), nil
}
