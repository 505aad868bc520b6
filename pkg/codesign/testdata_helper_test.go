package codesign

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Bytes that precede and follow the XML payload of a CMS wrapped .mobileprovision
var (
	cmsPrefix  = []byte{0x30, 0x82, 0x1d, 0x4c, 0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x07, 0x02, 0xa0, 0x82, 0x1d, 0x3d, 0x30, 0x82, 0x1d, 0x39, 0x02, 0x01, 0x01, 0x31, 0x0b, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0xff, 0xfe}
	cmsTrailer = []byte{0xa0, 0x82, 0x0e, 0x3f, 0x30, 0x82, 0x04, 0x44, 0x30, 0x82, 0x03, 0x2c, 0xa0, 0x03, 0x02, 0x01, 0x02, 0x00}
)

// testProfileContent returns the top-level dictionary of a valid profile
func testProfileContent(name, appID string) map[string]interface{} {
	return map[string]interface{}{
		"UUID":                        "2c7a1f0e-5b44-4f7e-9a3d-6a1c2b3d4e5f",
		"Name":                        name,
		"TeamName":                    "Example Inc.",
		"TeamIdentifier":              []interface{}{"ABCDE12345"},
		"ApplicationIdentifierPrefix": []interface{}{"ABCDE12345"},
		"CreationDate":                time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		"ExpirationDate":              time.Date(2099, 1, 2, 3, 4, 5, 0, time.UTC),
		"ProvisionedDevices":          []interface{}{"00008030-001A2B3C4D5E6F70"},
		"Entitlements": map[string]interface{}{
			"application-identifier": appID,
			"aps-environment":        "development",
			"get-task-allow":         true,
			"keychain-access-groups": []interface{}{"ABCDE12345.*"},
		},
	}
}

// wrapProfile encodes content and surrounds it with binary envelope bytes
func wrapProfile(t *testing.T, content map[string]interface{}) []byte {
	t.Helper()
	xml, err := EncodePlist(content)
	require.NoError(t, err)

	data := append([]byte{}, cmsPrefix...)
	data = append(data, xml...)
	return append(data, cmsTrailer...)
}

// writeProfile writes a wrapped profile to dir/name and returns its path
func writeProfile(t *testing.T, dir, name string, content map[string]interface{}) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, wrapProfile(t, content), 0644))
	return path
}

// makeApp creates a minimal .app bundle holding an embedded profile
func makeApp(t *testing.T, content map[string]interface{}) string {
	t.Helper()
	appPath := filepath.Join(t.TempDir(), "Example.app")
	require.NoError(t, os.MkdirAll(appPath, 0755))
	writeProfile(t, appPath, EmbeddedProfileName, content)
	return appPath
}

func fileChecksum(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fakeTool returns canned introspection output and records signing calls
type fakeTool struct {
	introspectOut []byte
	introspectErr error
	signErr       error

	signCalls []SignOptions
	// state of the entitlements file at the moment Sign ran
	entitlementsData   []byte
	entitlementsExists bool
}

func (f *fakeTool) Introspect(_ context.Context, _ string) ([]byte, error) {
	return f.introspectOut, f.introspectErr
}

func (f *fakeTool) Sign(_ context.Context, opts SignOptions) error {
	f.signCalls = append(f.signCalls, opts)
	data, err := os.ReadFile(opts.EntitlementsPath)
	f.entitlementsExists = err == nil
	f.entitlementsData = data
	return f.signErr
}

// entitlementsOutput mimics codesign --display output: a blob header followed by XML
func entitlementsOutput(t *testing.T, entitlements map[string]interface{}) []byte {
	t.Helper()
	xml, err := EncodePlist(entitlements)
	require.NoError(t, err)
	return append([]byte{0xfa, 0xde, 0x71, 0x71, 0x00, 0x00, 0x01, 0x2c}, xml...)
}
