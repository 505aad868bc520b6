package codesign

import (
	"context"
	"fmt"
)

// KeychainAccessGroupsKey is the entitlement that is carried over from the
// bundle's current signature when it is re-signed
const KeychainAccessGroupsKey = "keychain-access-groups"

// MergeKeychainAccessGroups returns a copy of target in which keychain-access-groups
// is taken from current, if current defines a non-empty value for it. All other
// keys of target pass through unchanged and target itself is not modified.
func MergeKeychainAccessGroups(target, current map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(target)+1)
	for k, v := range target {
		merged[k] = v
	}

	if groups, ok := current[KeychainAccessGroupsKey]; ok && !isEmptyValue(groups) {
		merged[KeychainAccessGroupsKey] = groups
	}
	return merged
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case []interface{}:
		return len(val) == 0
	case string:
		return val == ""
	}
	return false
}

// GenerateEntitlements merges the target profile's entitlements with the
// keychain access groups the application is currently signed with
func GenerateEntitlements(ctx context.Context, tool Tool, target map[string]interface{}, app *Application) (map[string]interface{}, error) {
	current, err := CurrentSignedEntitlements(ctx, tool, app)
	if err != nil {
		return nil, err
	}
	return MergeKeychainAccessGroups(target, current), nil
}

// EntitlementsToXML converts entitlements map to XML plist bytes
func EntitlementsToXML(entitlements map[string]interface{}) ([]byte, error) {
	data, err := EncodePlist(entitlements)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entitlements to XML: %w", err)
	}
	return data, nil
}

// ParseEntitlementsXML parses XML plist entitlements into a map
func ParseEntitlementsXML(data []byte) (map[string]interface{}, error) {
	entitlements, err := DecodePlist(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse entitlements XML: %w", err)
	}
	return entitlements, nil
}
