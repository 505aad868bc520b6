package codesign

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resignFixture struct {
	app        *Application
	profile    *ProvisioningProfile
	tempDir    string
	oldSum     string
	newSum     string
	newProfile string
}

func newResignFixture(t *testing.T) *resignFixture {
	t.Helper()
	appPath := makeApp(t, testProfileContent("Old Profile", "OLDTEAM123.com.example.app"))
	app, err := LoadApplication(appPath)
	require.NoError(t, err)

	newProfile := writeProfile(t, t.TempDir(), "new.mobileprovision", testProfileContent("New Profile", "ABCDE12345.com.example.app"))
	profile, err := ReadProvisioningProfile(newProfile)
	require.NoError(t, err)

	return &resignFixture{
		app:        app,
		profile:    profile,
		tempDir:    t.TempDir(),
		oldSum:     fileChecksum(t, app.EmbeddedProfilePath()),
		newSum:     fileChecksum(t, newProfile),
		newProfile: newProfile,
	}
}

func (f *resignFixture) request(dryRun bool) Request {
	return Request{
		Application: f.app,
		Profile:     f.profile,
		Identity:    "iPhone Developer: Jane Doe (ABCDE12345)",
		DryRun:      dryRun,
	}
}

// remainingTempFiles lists entitlements files left in the fixture's temp dir
func (f *resignFixture) remainingTempFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.tempDir, "entitlements-*.plist"))
	require.NoError(t, err)
	return matches
}

func TestRecodesign(t *testing.T) {
	f := newResignFixture(t)
	tool := &fakeTool{introspectOut: entitlementsOutput(t, map[string]interface{}{
		"keychain-access-groups": []interface{}{"OLDTEAM123.com.example.app"},
	})}
	r := &Resigner{Tool: tool, TempDir: f.tempDir}

	require.NoError(t, r.Recodesign(context.Background(), f.request(false)))

	assert.Equal(t, f.newSum, fileChecksum(t, f.app.EmbeddedProfilePath()), "embedded profile must be replaced")

	require.Len(t, tool.signCalls, 1)
	call := tool.signCalls[0]
	assert.Equal(t, f.app.BundlePath, call.BundlePath)
	assert.Equal(t, "iPhone Developer: Jane Doe (ABCDE12345)", call.Identity)
	assert.False(t, call.DryRun)
	assert.Equal(t, ".plist", filepath.Ext(call.EntitlementsPath))
	assert.Equal(t, f.tempDir, filepath.Dir(call.EntitlementsPath))

	require.True(t, tool.entitlementsExists, "entitlements file must exist while signing")
	written, err := ParseEntitlementsXML(tool.entitlementsData)
	require.NoError(t, err)
	assert.Equal(t, "ABCDE12345.com.example.app", written["application-identifier"])
	assert.Equal(t, []interface{}{"OLDTEAM123.com.example.app"}, written["keychain-access-groups"])
	assert.Equal(t, []interface{}{"ABCDE12345.*"}, f.profile.Entitlements["keychain-access-groups"], "profile entitlements must not be modified")

	_, err = os.Stat(call.EntitlementsPath)
	assert.True(t, os.IsNotExist(err), "entitlements file must be removed")
	assert.Empty(t, f.remainingTempFiles(t))
}

func TestRecodesign_DryRun(t *testing.T) {
	f := newResignFixture(t)
	tool := &fakeTool{}
	r := &Resigner{Tool: tool, TempDir: f.tempDir}

	require.NoError(t, r.Recodesign(context.Background(), f.request(true)))

	assert.Equal(t, f.oldSum, fileChecksum(t, f.app.EmbeddedProfilePath()), "dry run must not touch the embedded profile")
	require.Len(t, tool.signCalls, 1)
	assert.True(t, tool.signCalls[0].DryRun)
	assert.Contains(t, tool.signCalls[0].Args(), "--dryrun")
	assert.Empty(t, f.remainingTempFiles(t))
}

func TestRecodesign_SigningFailure(t *testing.T) {
	f := newResignFixture(t)
	signErr := &SigningFailedError{Path: f.app.BundlePath, ExitCode: 1, Stderr: "no identity found"}
	tool := &fakeTool{signErr: signErr}
	r := &Resigner{Tool: tool, TempDir: f.tempDir}

	err := r.Recodesign(context.Background(), f.request(false))

	var failed *SigningFailedError
	require.True(t, errors.As(err, &failed), "expected SigningFailedError, got %v", err)
	assert.Equal(t, "no identity found", failed.Stderr)
	assert.Contains(t, err.Error(), "no identity found")

	require.Len(t, tool.signCalls, 1)
	_, statErr := os.Stat(tool.signCalls[0].EntitlementsPath)
	assert.True(t, os.IsNotExist(statErr), "entitlements file must be removed after a failed signing")
	assert.Empty(t, f.remainingTempFiles(t))

	// no rollback: the new profile stays embedded
	assert.Equal(t, f.newSum, fileChecksum(t, f.app.EmbeddedProfilePath()))
}

func TestRecodesign_IntrospectionFailureLeavesNewProfile(t *testing.T) {
	f := newResignFixture(t)
	tool := &fakeTool{introspectOut: []byte("garbage without markers")}
	r := &Resigner{Tool: tool, TempDir: f.tempDir}

	err := r.Recodesign(context.Background(), f.request(false))

	var introspectErr *IntrospectionError
	require.True(t, errors.As(err, &introspectErr), "expected IntrospectionError, got %v", err)
	assert.Empty(t, tool.signCalls)
	assert.Empty(t, f.remainingTempFiles(t))
	assert.Equal(t, f.newSum, fileChecksum(t, f.app.EmbeddedProfilePath()))
}

func TestRecodesign_ProfileWriteError(t *testing.T) {
	f := newResignFixture(t)
	require.NoError(t, os.Remove(f.newProfile))
	tool := &fakeTool{}
	r := &Resigner{Tool: tool, TempDir: f.tempDir}

	err := r.Recodesign(context.Background(), f.request(false))

	var writeErr *ProfileWriteError
	require.True(t, errors.As(err, &writeErr), "expected ProfileWriteError, got %v", err)
	assert.Equal(t, f.app.EmbeddedProfilePath(), writeErr.Path)
	assert.Empty(t, tool.signCalls)
	assert.Equal(t, f.oldSum, fileChecksum(t, f.app.EmbeddedProfilePath()))
}

func TestRecodesign_InvalidRequest(t *testing.T) {
	f := newResignFixture(t)
	r := &Resigner{Tool: &fakeTool{}, TempDir: f.tempDir}

	req := f.request(false)
	req.Identity = ""
	assert.Error(t, r.Recodesign(context.Background(), req))

	req = f.request(false)
	req.Profile = nil
	assert.Error(t, r.Recodesign(context.Background(), req))

	req = f.request(false)
	req.Application = nil
	assert.Error(t, r.Recodesign(context.Background(), req))

	assert.Equal(t, f.oldSum, fileChecksum(t, f.app.EmbeddedProfilePath()))
}

func TestRecodesign_ProfileAlreadyEmbedded(t *testing.T) {
	f := newResignFixture(t)
	profile, err := ReadProvisioningProfile(f.app.EmbeddedProfilePath())
	require.NoError(t, err)
	tool := &fakeTool{}
	r := &Resigner{Tool: tool, TempDir: f.tempDir}

	req := f.request(false)
	req.Profile = profile
	require.NoError(t, r.Recodesign(context.Background(), req))

	assert.Equal(t, f.oldSum, fileChecksum(t, f.app.EmbeddedProfilePath()), "embedded profile must be left intact")
	reloaded, err := ReadProvisioningProfile(f.app.EmbeddedProfilePath())
	require.NoError(t, err)
	assert.Equal(t, "Old Profile", reloaded.Name)
	require.Len(t, tool.signCalls, 1)
}
