// Package codesign re-signs iOS .app bundles with a new provisioning profile.
//
// The package reads provisioning profiles, merges the target profile's
// entitlements with the keychain access groups the bundle is currently signed
// with, and drives Apple's codesign tool with the result. The cryptographic
// signing is left to codesign.
//
// # Basic Usage
//
//	app, err := codesign.LoadApplication("MyApp.app")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	profile, err := codesign.ReadProvisioningProfile("dev.mobileprovision")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r := codesign.NewResigner(codesign.NewExecTool(""))
//	err = r.Recodesign(ctx, codesign.Request{
//	    Application: app,
//	    Profile:     profile,
//	    Identity:    "iPhone Developer",
//	})
//
// # Introspection without codesign
//
// MachOTool reads the current entitlements from the main executable's
// signature blob and only shells out for the signing step.
package codesign
