package codesign

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// DefaultCodesignPath is the location of Apple's codesign tool
const DefaultCodesignPath = "/usr/bin/codesign"

// Tool performs the operations that need the platform code signing tool.
// Implementations other than ExecTool exist so the pipeline can run without codesign.
type Tool interface {
	// Introspect returns the raw entitlements a bundle is currently signed with.
	// Empty output means the bundle carries no entitlements.
	Introspect(ctx context.Context, bundlePath string) ([]byte, error)
	// Sign signs the bundle. A failed signing run is reported as *SigningFailedError.
	Sign(ctx context.Context, opts SignOptions) error
}

// SignOptions describes a single signing invocation
type SignOptions struct {
	BundlePath       string
	Identity         string
	EntitlementsPath string
	DryRun           bool
}

// Args returns the codesign argument vector for opts
func (o SignOptions) Args() []string {
	var args []string
	if o.DryRun {
		args = append(args, "--dryrun")
	}
	return append(args,
		"-f",
		"-s", o.Identity,
		"--entitlements", o.EntitlementsPath,
		"--preserve-metadata=resource-rules",
		o.BundlePath,
	)
}

// ExecTool runs the codesign executable
type ExecTool struct {
	// Path to codesign, DefaultCodesignPath when empty
	Path string
}

// NewExecTool returns an ExecTool for the codesign binary at path
func NewExecTool(path string) *ExecTool {
	return &ExecTool{Path: path}
}

func (t *ExecTool) path() string {
	if t.Path == "" {
		return DefaultCodesignPath
	}
	return t.Path
}

// Introspect runs "codesign --display --entitlements - --xml" against the bundle.
// Only stdout is kept. The exit status is ignored: unsigned bundles make codesign
// exit non-zero with nothing on stdout, which is a valid state.
func (t *ExecTool) Introspect(ctx context.Context, bundlePath string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.path(), "--display", "--entitlements", "-", "--xml", bundlePath)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		log.WithFields(log.Fields{"error": err, "cmd": cmd}).Errorf("could not run codesign")
		return nil, &IntrospectionError{Path: bundlePath, Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &IntrospectionError{Path: bundlePath, Err: ctxErr}
	}
	log.WithFields(log.Fields{"cmd": cmd, "exit": cmd.ProcessState.ExitCode(), "bytes": stdout.Len()}).Debugf("codesign display invoked")
	return stdout.Bytes(), nil
}

// Sign runs codesign with the arguments from opts and waits for it to exit.
// stderr is captured for the error; success is decided by the exit code alone.
func (t *ExecTool) Sign(ctx context.Context, opts SignOptions) error {
	cmd := exec.CommandContext(ctx, t.path(), opts.Args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		log.WithFields(log.Fields{"error": err, "cmd": cmd, "output": stderr.String()}).Errorf("codesign failed")
		return &SigningFailedError{Path: opts.BundlePath, ExitCode: exitCode, Stderr: stderr.String(), Err: err}
	}
	log.WithFields(log.Fields{"cmd": cmd, "output": stderr.String()}).Debugf("codesign invoked")
	return nil
}
