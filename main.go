package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluedeke/go-iresign/pkg/codesign"
	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"
)

const version = "0.3.0"

const defaultIdentity = "iPhone Developer"

const usage = `go-iresign - iOS App Re-signing Tool

Re-sign an iOS .app bundle with a new provisioning profile and signing identity,
keeping the keychain access groups the app is currently signed with.

Usage:
  go-iresign resign <app> <profile> [<identity>] [--dryrun] [--verbose] [--password=<password>] [--codesign=<path>] [--native]
  go-iresign info <profile>
  go-iresign -h | --help
  go-iresign --version

Commands:
  resign    Embed <profile> into <app> and re-sign it
  info      Display information about a provisioning profile

Arguments:
  <app>                 Path to the .app bundle directory
  <profile>             Path to the provisioning profile
  <identity>            Signing identity, or a .p12 file whose certificate is in the keychain
                        (or IRESIGN_IDENTITY env var, default "iPhone Developer")

Options:
  -d --dryrun            Only check whether re-signing is possible, the bundle is not modified
  -v --verbose           Show information about both provisioning profiles
  --password=<password>  Password for a .p12 identity (or IRESIGN_PASSWORD env var)
  --codesign=<path>      Path to the codesign tool (or IRESIGN_CODESIGN env var)
  --native               Read the current entitlements from the executable instead of running codesign
  -h --help              Show this help message
  --version              Show version

Environment Variables:
  IRESIGN_IDENTITY      Signing identity (overridden by <identity>)
  IRESIGN_PASSWORD      .p12 password (overridden by --password)
  IRESIGN_CODESIGN      codesign path (overridden by --codesign)

Examples:
  # Re-sign with the default identity
  go-iresign resign MyApp.app dev.mobileprovision

  # Re-sign with an explicit identity and show both profiles
  go-iresign resign MyApp.app dev.mobileprovision "iPhone Distribution: Example Inc." -v

  # Check a re-sign without touching the bundle
  go-iresign resign MyApp.app dev.mobileprovision --dryrun

  # View provisioning profile information
  go-iresign info dev.mobileprovision
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}

	if resign, _ := opts.Bool("resign"); resign {
		if err := runResign(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else if info, _ := opts.Bool("info"); info {
		if err := runInfo(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func runResign(opts docopt.Opts) error {
	appPath, _ := opts.String("<app>")
	profilePath, _ := opts.String("<profile>")
	identity, _ := opts.String("<identity>")
	password, _ := opts.String("--password")
	codesignPath, _ := opts.String("--codesign")
	dryRun, _ := opts.Bool("--dryrun")
	verbose, _ := opts.Bool("--verbose")
	native, _ := opts.Bool("--native")

	// Get values from environment if not provided via arguments
	if identity == "" {
		identity = os.Getenv("IRESIGN_IDENTITY")
	}
	if identity == "" {
		identity = defaultIdentity
	}
	if password == "" {
		password = os.Getenv("IRESIGN_PASSWORD")
	}
	if codesignPath == "" {
		codesignPath = os.Getenv("IRESIGN_CODESIGN")
	}

	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	app, err := codesign.LoadApplication(appPath)
	if err != nil {
		return err
	}
	profile, err := codesign.ReadProvisioningProfile(profilePath)
	if err != nil {
		return err
	}
	signingIdentity, p12, err := codesign.ResolveIdentity(identity, password)
	if err != nil {
		return fmt.Errorf("failed to resolve signing identity: %w", err)
	}
	if p12 != nil {
		log.WithField("team", p12.TeamID).Debugf("using certificate %s (%s)", p12.Certificate.Subject.CommonName, p12.Fingerprint)
		if err := p12.CheckProfile(profile); err != nil {
			log.Warnf("%v", err)
		}
	}

	if verbose {
		showProvisionInfo(app.EmbeddedProfile)
		showProvisionInfo(profile)
	}

	var tool codesign.Tool = codesign.NewExecTool(codesignPath)
	if native {
		tool = &codesign.MachOTool{Signer: tool}
	}

	fmt.Printf("* Recodesigning :: %s => %s\n", app.EmbeddedProfile.Name, profile.Name)
	if dryRun {
		fmt.Println("* dry run, the bundle will not be modified")
	}

	resigner := codesign.NewResigner(tool)
	err = resigner.Recodesign(context.Background(), codesign.Request{
		Application: app,
		Profile:     profile,
		Identity:    signingIdentity,
		DryRun:      dryRun,
	})
	if err != nil {
		return err
	}

	fmt.Println("* done!")
	return nil
}

func runInfo(opts docopt.Opts) error {
	profilePath, _ := opts.String("<profile>")

	profile, err := codesign.ReadProvisioningProfile(profilePath)
	if err != nil {
		return err
	}

	fmt.Println("Provisioning Profile Information")
	fmt.Println("================================")
	fmt.Printf("File:           %s\n", profilePath)
	fmt.Printf("Name:           %s\n", profile.Name)
	fmt.Printf("UUID:           %s\n", profile.UUID)
	fmt.Printf("Team ID:        %s\n", profile.GetTeamID())
	if profile.TeamName != "" {
		fmt.Printf("Team Name:      %s\n", profile.TeamName)
	}
	fmt.Printf("App ID:         %s\n", profile.AppID)
	fmt.Printf("APS Env:        %s\n", profile.APSEnvironment)
	fmt.Printf("Task Allow:     %v\n", profile.TaskAllow)
	if profile.SignerName != "" {
		fmt.Printf("Signed By:      %s\n", profile.SignerName)
	}
	if !profile.CreationDate.IsZero() {
		fmt.Printf("Created:        %s\n", profile.CreationDate.Format("2006-01-02 15:04:05"))
	}
	if !profile.ExpirationDate.IsZero() {
		fmt.Printf("Expiration:     %s\n", profile.ExpirationDate.Format("2006-01-02 15:04:05"))
		fmt.Printf("Expired:        %v\n", profile.IsExpired())
	}
	if certs, err := profile.GetCertificates(); err == nil && len(certs) > 0 {
		fmt.Printf("Certificates:   %d\n", len(certs))
		for i, cert := range certs {
			fmt.Printf("  [%d] %s\n", i+1, cert.Subject.CommonName)
			fmt.Printf("      Serial: %s\n", cert.SerialNumber.String())
			fmt.Printf("      Expires: %s\n", cert.NotAfter.Format("2006-01-02"))
		}
	}

	if profile.ProvisionsAllDevices {
		fmt.Println("Devices:        all")
	} else if len(profile.ProvisionedDevices) > 0 {
		fmt.Printf("Devices:        %d\n", len(profile.ProvisionedDevices))
		for _, udid := range profile.ProvisionedDevices {
			fmt.Printf("  - %s\n", udid)
		}
	}

	if len(profile.Entitlements) > 0 {
		fmt.Println()
		fmt.Println("Entitlements:")
		for key, value := range profile.Entitlements {
			fmt.Printf("  %s: %v\n", key, value)
		}
	}

	return nil
}

func showProvisionInfo(profile *codesign.ProvisioningProfile) {
	fmt.Println()
	fmt.Printf("     Provision :: %s\n", filepath.Base(profile.SourcePath))
	fmt.Println()
	fmt.Printf("          UUID:   %s\n", profile.UUID)
	fmt.Printf("          Name:   %s\n", profile.Name)
	fmt.Printf("        App ID:   %s\n", profile.AppID)
	fmt.Printf("       APS Env:   %s\n", profile.APSEnvironment)
	fmt.Printf("    Task Allow:   %v\n", profile.TaskAllow)
	fmt.Println()
}
