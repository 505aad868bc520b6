package codesign

import (
	"bytes"
	"fmt"

	"howett.net/plist"
)

// Markers delimiting the XML payload of a property list that may be wrapped in a
// binary envelope (CMS container of a .mobileprovision, blob header of codesign output).
var (
	plistStartMarker = []byte("<?xml")
	plistEndMarker   = []byte("</plist>")
)

// ExtractPlistXML returns the span of data starting at the first "<?xml" and
// ending after the last "</plist>".
//
// data is treated as raw bytes: the markers are ASCII and are matched byte for
// byte, and no character set decoding is applied before or after the scan. The
// returned slice aliases data.
func ExtractPlistXML(data []byte) ([]byte, error) {
	start := bytes.Index(data, plistStartMarker)
	if start < 0 {
		return nil, &MalformedPlistError{Reason: "missing <?xml prologue"}
	}
	end := bytes.LastIndex(data, plistEndMarker)
	if end < 0 {
		return nil, &MalformedPlistError{Reason: "missing </plist> terminator"}
	}
	if end < start {
		return nil, &MalformedPlistError{Reason: "</plist> terminator precedes <?xml prologue"}
	}
	return data[start : end+len(plistEndMarker)], nil
}

// DecodePlist decodes an XML property list whose root is a dictionary. Any
// bytes before the XML prologue or after the closing plist tag are ignored.
func DecodePlist(data []byte) (map[string]interface{}, error) {
	payload, err := ExtractPlistXML(data)
	if err != nil {
		return nil, err
	}

	// The root must be a dictionary; other roots fail to unmarshal into a map.
	m := make(map[string]interface{})
	if _, err := plist.Unmarshal(payload, &m); err != nil {
		return nil, &MalformedPlistError{Reason: "invalid property list", Err: err}
	}
	return m, nil
}

// EncodePlist serializes m as an XML property list
func EncodePlist(m map[string]interface{}) ([]byte, error) {
	data, err := plist.MarshalIndent(m, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plist: %w", err)
	}
	return data, nil
}
