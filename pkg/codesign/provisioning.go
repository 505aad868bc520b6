package codesign

import (
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"go.mozilla.org/pkcs7"
)

// EmbeddedProfileName is the file name of the provisioning profile inside an .app bundle
const EmbeddedProfileName = "embedded.mobileprovision"

// ProvisioningProfile represents a parsed .mobileprovision file
type ProvisioningProfile struct {
	SourcePath     string
	UUID           string
	Name           string
	AppIDPrefix    string
	Entitlements   map[string]interface{}
	AppID          string
	APSEnvironment string
	TaskAllow      bool

	// Optional metadata, zero when the profile does not carry it
	TeamName              string
	TeamIdentifier        []string
	CreationDate          time.Time
	ExpirationDate        time.Time
	DeveloperCertificates [][]byte
	ProvisionedDevices    []string
	ProvisionsAllDevices  bool
	// SignerName is the common name of the CMS envelope signer, if the envelope parses
	SignerName string
}

// ReadProvisioningProfile reads and parses the provisioning profile at path.
// Every call reads the file again.
func ReadProvisioningProfile(path string) (*ProvisioningProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ProfileReadError{Path: path, Err: err}
	}
	return ParseProvisioningProfile(data, path)
}

// ParseProvisioningProfile parses the contents of a .mobileprovision file.
// The XML payload is located by scanning for its markers, so both raw plists and
// CMS (PKCS#7) signed containers are accepted. path is recorded as SourcePath.
func ParseProvisioningProfile(data []byte, path string) (*ProvisioningProfile, error) {
	content, err := DecodePlist(data)
	if err != nil {
		return nil, err
	}

	p := &ProvisioningProfile{SourcePath: path}

	if p.UUID, err = requireString(content, path, "", "UUID"); err != nil {
		return nil, err
	}
	if p.Name, err = requireString(content, path, "", "Name"); err != nil {
		return nil, err
	}
	if p.AppIDPrefix, err = requireFirstString(content, path, "ApplicationIdentifierPrefix"); err != nil {
		return nil, err
	}

	raw, ok := content["Entitlements"]
	if !ok {
		return nil, &MissingFieldError{Path: path, Field: "Entitlements"}
	}
	entitlements, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &InvalidFieldError{Path: path, Field: "Entitlements", Want: "dictionary", Got: raw}
	}
	p.Entitlements = entitlements

	if p.AppID, err = requireString(entitlements, path, "Entitlements", "application-identifier"); err != nil {
		return nil, err
	}
	if p.APSEnvironment, err = requireString(entitlements, path, "Entitlements", "aps-environment"); err != nil {
		return nil, err
	}
	if p.TaskAllow, err = requireBool(entitlements, path, "Entitlements", "get-task-allow"); err != nil {
		return nil, err
	}

	p.TeamName, _ = content["TeamName"].(string)
	p.TeamIdentifier = stringSlice(content["TeamIdentifier"])
	p.CreationDate, _ = content["CreationDate"].(time.Time)
	p.ExpirationDate, _ = content["ExpirationDate"].(time.Time)
	p.ProvisionedDevices = stringSlice(content["ProvisionedDevices"])
	p.ProvisionsAllDevices, _ = content["ProvisionsAllDevices"].(bool)
	if certs, ok := content["DeveloperCertificates"].([]interface{}); ok {
		for _, c := range certs {
			if der, ok := c.([]byte); ok {
				p.DeveloperCertificates = append(p.DeveloperCertificates, der)
			}
		}
	}
	p.SignerName = envelopeSignerName(data)

	return p, nil
}

func requireString(m map[string]interface{}, path, parent, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", &MissingFieldError{Path: path, Parent: parent, Field: key}
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidFieldError{Path: path, Parent: parent, Field: key, Want: "string", Got: v}
	}
	return s, nil
}

func requireBool(m map[string]interface{}, path, parent, key string) (bool, error) {
	v, ok := m[key]
	if !ok {
		return false, &MissingFieldError{Path: path, Parent: parent, Field: key}
	}
	b, ok := v.(bool)
	if !ok {
		return false, &InvalidFieldError{Path: path, Parent: parent, Field: key, Want: "boolean", Got: v}
	}
	return b, nil
}

// requireFirstString returns the first element of a required array of strings.
// An empty array counts as missing.
func requireFirstString(m map[string]interface{}, path, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", &MissingFieldError{Path: path, Field: key}
	}
	arr, ok := v.([]interface{})
	if !ok {
		return "", &InvalidFieldError{Path: path, Field: key, Want: "array", Got: v}
	}
	if len(arr) == 0 {
		return "", &MissingFieldError{Path: path, Field: key}
	}
	s, ok := arr[0].(string)
	if !ok {
		return "", &InvalidFieldError{Path: path, Field: key, Want: "array of strings", Got: arr[0]}
	}
	return s, nil
}

func stringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// envelopeSignerName returns the signer CN of a CMS wrapped profile, or "" for
// anything that is not a single-signer PKCS#7 container. No verification is done.
func envelopeSignerName(data []byte) string {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return ""
	}
	cert := p7.GetOnlySigner()
	if cert == nil {
		return ""
	}
	return cert.Subject.CommonName
}

// GetTeamID returns the team identifier from the profile
func (p *ProvisioningProfile) GetTeamID() string {
	if len(p.TeamIdentifier) > 0 {
		return p.TeamIdentifier[0]
	}
	return p.AppIDPrefix
}

// IsExpired checks if the provisioning profile has expired.
// Profiles without an expiration date never expire.
func (p *ProvisioningProfile) IsExpired() bool {
	if p.ExpirationDate.IsZero() {
		return false
	}
	return time.Now().After(p.ExpirationDate)
}

// GetCertificates parses and returns the developer certificates from the profile
func (p *ProvisioningProfile) GetCertificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for i, certData := range p.DeveloperCertificates {
		cert, err := x509.ParseCertificate(certData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// MatchesCertificate checks if the given certificate matches any certificate in the profile
func (p *ProvisioningProfile) MatchesCertificate(cert *x509.Certificate) bool {
	for _, certData := range p.DeveloperCertificates {
		profileCert, err := x509.ParseCertificate(certData)
		if err != nil {
			continue
		}
		if cert.Equal(profileCert) {
			return true
		}
	}
	return false
}
