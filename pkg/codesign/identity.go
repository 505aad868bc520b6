package codesign

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gop12 "software.sslmate.com/src/go-pkcs12"
)

// P12Identity is the certificate side of a PKCS#12 signing identity
type P12Identity struct {
	Certificate *x509.Certificate
	// Fingerprint is the upper-case hex SHA-1 of the certificate, which codesign -s accepts
	Fingerprint string
	TeamID      string
}

// LoadP12Identity decodes a PKCS#12 file. The private key is not kept: codesign
// looks it up in the keychain by fingerprint.
func LoadP12Identity(p12Data []byte, password string) (*P12Identity, error) {
	_, cert, _, err := gop12.DecodeChain(p12Data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode P12: %w", err)
	}

	sum := sha1.Sum(cert.Raw)
	return &P12Identity{
		Certificate: cert,
		Fingerprint: strings.ToUpper(hex.EncodeToString(sum[:])),
		TeamID:      extractTeamID(cert),
	}, nil
}

// ResolveIdentity turns a user supplied identity into the value given to codesign.
// A path to an existing .p12 or .pfx file is replaced by its certificate
// fingerprint and the decoded identity is returned alongside; any other value is
// returned unchanged with a nil identity.
func ResolveIdentity(identity, password string) (string, *P12Identity, error) {
	ext := strings.ToLower(filepath.Ext(identity))
	if ext != ".p12" && ext != ".pfx" {
		return identity, nil, nil
	}
	data, err := os.ReadFile(identity)
	if os.IsNotExist(err) {
		return identity, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read P12 file: %w", err)
	}

	id, err := LoadP12Identity(data, password)
	if err != nil {
		return "", nil, err
	}
	return id.Fingerprint, id, nil
}

// CheckProfile reports whether the identity can sign for profile: its
// certificate must be one of the profile's developer certificates and its team
// must be the profile's team. Checks the profile carries no data for are skipped.
func (id *P12Identity) CheckProfile(p *ProvisioningProfile) error {
	if len(p.DeveloperCertificates) > 0 && !p.MatchesCertificate(id.Certificate) {
		return fmt.Errorf("certificate %q is not included in profile %q", id.Certificate.Subject.CommonName, p.Name)
	}
	if teamID := p.GetTeamID(); id.TeamID != "" && teamID != "" && id.TeamID != teamID {
		return fmt.Errorf("certificate team %s does not match profile team %s", id.TeamID, teamID)
	}
	return nil
}

func extractTeamID(cert *x509.Certificate) string {
	// Team ID is typically in the Organizational Unit field
	for _, ou := range cert.Subject.OrganizationalUnit {
		if len(ou) == 10 { // Apple Team IDs are 10 characters
			return ou
		}
	}
	return ""
}
