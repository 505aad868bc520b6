package codesign

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

// Application is an .app bundle together with its embedded provisioning profile
type Application struct {
	BundlePath      string
	EmbeddedProfile *ProvisioningProfile
}

// EmbeddedProfilePath returns the path of the bundle's embedded.mobileprovision
func (a *Application) EmbeddedProfilePath() string {
	return filepath.Join(a.BundlePath, EmbeddedProfileName)
}

// LoadApplication reads the .app bundle at bundlePath and its embedded provisioning profile
func LoadApplication(bundlePath string) (*Application, error) {
	info, err := os.Stat(bundlePath)
	if err != nil {
		return nil, &BundleNotFoundError{Path: bundlePath, Err: err}
	}
	if !info.IsDir() {
		return nil, &BundleNotFoundError{Path: bundlePath, Err: fmt.Errorf("not a directory")}
	}

	app := &Application{BundlePath: bundlePath}
	profile, err := ReadProvisioningProfile(app.EmbeddedProfilePath())
	if err != nil {
		return nil, err
	}
	app.EmbeddedProfile = profile
	return app, nil
}

// CurrentSignedEntitlements returns the entitlements the bundle is signed with right now.
// An unsigned bundle, or one signed without entitlements, yields an empty map.
func CurrentSignedEntitlements(ctx context.Context, tool Tool, app *Application) (map[string]interface{}, error) {
	out, err := tool.Introspect(ctx, app.BundlePath)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return map[string]interface{}{}, nil
	}

	entitlements, err := DecodePlist(out)
	if err != nil {
		return nil, &IntrospectionError{Path: app.BundlePath, Err: err}
	}
	return entitlements, nil
}

// GetAppExecutableName reads the executable name from an app's Info.plist
func GetAppExecutableName(appPath string) (string, error) {
	infoPlistPath := filepath.Join(appPath, "Info.plist")
	data, err := os.ReadFile(infoPlistPath)
	if err != nil {
		return "", fmt.Errorf("failed to read Info.plist: %w", err)
	}

	info, err := parseInfoPlist(data)
	if err != nil {
		return "", err
	}

	execName, ok := info["CFBundleExecutable"].(string)
	if !ok {
		return "", fmt.Errorf("CFBundleExecutable not found in Info.plist")
	}

	return execName, nil
}

// parseInfoPlist accepts every plist format; Info.plist files in built apps are
// usually binary, unlike profiles and codesign output.
func parseInfoPlist(data []byte) (map[string]interface{}, error) {
	var info map[string]interface{}
	_, err := plist.Unmarshal(data, &info)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plist: %w", err)
	}
	return info, nil
}

// replaceFile overwrites dst with the contents of src using streaming I/O.
// An existing dst keeps its permissions. When src and dst are the same file
// nothing is written.
func replaceFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}
	if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(srcInfo, dstInfo) {
		log.WithField("file", dst).Debugf("source and destination are the same file, not copying")
		return nil
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}
