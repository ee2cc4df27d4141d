package csr

import (
	"encoding/asn1"
	"fmt"
)

// Requested-extension OIDs the built-in validators care about.
var (
	oidCommonName       = asn1.ObjectIdentifier{2, 5, 4, 3}
	oidKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidSubjectAltName   = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidExtKeyUsage      = asn1.ObjectIdentifier{2, 5, 29, 37}
)

// KeyUsageNames maps key usage bit positions (per RFC 5280) to their long
// names, in bit order.
var KeyUsageNames = []string{
	"digitalSignature",
	"nonRepudiation",
	"keyEncipherment",
	"dataEncipherment",
	"keyAgreement",
	"keyCertSign",
	"cRLSign",
	"encipherOnly",
	"decipherOnly",
}

// ExtKeyUsageNames maps well-known extended key usage OIDs to their short
// names. Unknown OIDs are reported in dotted form.
var ExtKeyUsageNames = map[string]string{
	"1.3.6.1.5.5.7.3.1": "serverAuth",
	"1.3.6.1.5.5.7.3.2": "clientAuth",
	"1.3.6.1.5.5.7.3.3": "codeSigning",
	"1.3.6.1.5.5.7.3.4": "emailProtection",
	"1.3.6.1.5.5.7.3.8": "timeStamping",
	"1.3.6.1.5.5.7.3.9": "OCSPSigning",
}

// ExtensionNames maps requested-extension OIDs to the names policies use.
var ExtensionNames = map[string]string{
	"2.5.29.15": "keyUsage",
	"2.5.29.17": "subjectAltName",
	"2.5.29.19": "basicConstraints",
	"2.5.29.37": "extendedKeyUsage",
}

// RequestedExtensionOIDs lists the OIDs of all extensions the request asks
// for, in dotted form.
func (r *Request) RequestedExtensionOIDs() []string {
	oids := make([]string, 0, len(r.parsed.Extensions))
	for _, ext := range r.parsed.Extensions {
		oids = append(oids, ext.Id.String())
	}
	return oids
}

// KeyUsages returns the long names of all key usage bits the request asks
// for. Requests without a keyUsage extension return an empty slice.
func (r *Request) KeyUsages() ([]string, error) {
	for _, ext := range r.parsed.Extensions {
		if !ext.Id.Equal(oidKeyUsage) {
			continue
		}
		var bits asn1.BitString
		if _, err := asn1.Unmarshal(ext.Value, &bits); err != nil {
			return nil, fmt.Errorf("parse keyUsage extension: %w", err)
		}
		var usages []string
		for i, name := range KeyUsageNames {
			if bits.At(i) == 1 {
				usages = append(usages, name)
			}
		}
		return usages, nil
	}
	return nil, nil
}

// ExtKeyUsages returns the short names (or dotted OIDs when unknown) of all
// requested extended key usages.
func (r *Request) ExtKeyUsages() ([]string, error) {
	for _, ext := range r.parsed.Extensions {
		if !ext.Id.Equal(oidExtKeyUsage) {
			continue
		}
		var oids []asn1.ObjectIdentifier
		if _, err := asn1.Unmarshal(ext.Value, &oids); err != nil {
			return nil, fmt.Errorf("parse extendedKeyUsage extension: %w", err)
		}
		usages := make([]string, 0, len(oids))
		for _, oid := range oids {
			if name, ok := ExtKeyUsageNames[oid.String()]; ok {
				usages = append(usages, name)
			} else {
				usages = append(usages, oid.String())
			}
		}
		return usages, nil
	}
	return nil, nil
}

type basicConstraints struct {
	IsCA       bool `asn1:"optional"`
	MaxPathLen int  `asn1:"optional,default:-1"`
}

// RequestsCA reports whether the request carries a basicConstraints
// extension with the CA flag set.
func (r *Request) RequestsCA() (bool, error) {
	for _, ext := range r.parsed.Extensions {
		if !ext.Id.Equal(oidBasicConstraints) {
			continue
		}
		var bc basicConstraints
		if _, err := asn1.Unmarshal(ext.Value, &bc); err != nil {
			return false, fmt.Errorf("parse basicConstraints extension: %w", err)
		}
		return bc.IsCA, nil
	}
	return false, nil
}
