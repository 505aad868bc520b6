package codesign

import (
	"fmt"
	"strings"
)

// MalformedPlistError reports data that does not contain a decodable XML property list
type MalformedPlistError struct {
	Reason string
	Err    error
}

func (e *MalformedPlistError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed plist: %s: %v", e.Reason, e.Err)
	}
	return "malformed plist: " + e.Reason
}

func (e *MalformedPlistError) Unwrap() error { return e.Err }

// MissingFieldError reports the first required key absent from a provisioning profile.
// Parent is empty for top-level keys and "Entitlements" for entitlement keys.
type MissingFieldError struct {
	Path   string
	Parent string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("provisioning profile %s: missing required field %q", e.Path, fieldName(e.Parent, e.Field))
}

// InvalidFieldError reports a required key whose value has an unexpected type
type InvalidFieldError struct {
	Path   string
	Parent string
	Field  string
	Want   string
	Got    interface{}
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("provisioning profile %s: field %q is %T, expected %s", e.Path, fieldName(e.Parent, e.Field), e.Got, e.Want)
}

func fieldName(parent, field string) string {
	if parent == "" {
		return field
	}
	return parent + "." + field
}

// ProfileReadError reports a provisioning profile file that could not be read
type ProfileReadError struct {
	Path string
	Err  error
}

func (e *ProfileReadError) Error() string {
	return fmt.Sprintf("failed to read provisioning profile %s: %v", e.Path, e.Err)
}

func (e *ProfileReadError) Unwrap() error { return e.Err }

// BundleNotFoundError reports an application bundle path that does not exist
type BundleNotFoundError struct {
	Path string
	Err  error
}

func (e *BundleNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("app bundle not found: %s: %v", e.Path, e.Err)
	}
	return "app bundle not found: " + e.Path
}

func (e *BundleNotFoundError) Unwrap() error { return e.Err }

// IntrospectionError reports a failure to obtain the entitlements a bundle is currently signed with
type IntrospectionError struct {
	Path string
	Err  error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("failed to read signed entitlements of %s: %v", e.Path, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// ProfileWriteError reports a failure to replace the embedded provisioning profile.
// The bundle may be left with a partially written embedded.mobileprovision.
type ProfileWriteError struct {
	Path string
	Err  error
}

func (e *ProfileWriteError) Error() string {
	return fmt.Sprintf("failed to write provisioning profile %s: %v", e.Path, e.Err)
}

func (e *ProfileWriteError) Unwrap() error { return e.Err }

// SigningFailedError reports a signing invocation that did not exit successfully.
// ExitCode is -1 when the process could not be started or was killed.
type SigningFailedError struct {
	Path     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SigningFailedError) Error() string {
	msg := fmt.Sprintf("failed to sign %s (exit code %d)", e.Path, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SigningFailedError) Unwrap() error { return e.Err }
