package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Serialize returns the canonical pretty-printed JSON form of the package with
// the Size and Checksum fields cleared. Size and Checksum are always derived
// from this form so integrity can be re-verified after persistence.
func (p *OfflinePackage) Serialize() ([]byte, error) {
	clone := *p
	clone.Size = 0
	clone.Checksum = ""

	data, err := json.MarshalIndent(&clone, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize package: %w", err)
	}
	return data, nil
}

// Seal computes and sets Size and Checksum from the canonical serialized form.
// A sealed package is immutable; content changes require a new ID.
func (p *OfflinePackage) Seal() error {
	data, err := p.Serialize()
	if err != nil {
		return err
	}

	sum := sha256.Sum256(data)
	p.Size = int64(len(data))
	p.Checksum = hex.EncodeToString(sum[:])
	return nil
}

// Verify recomputes the checksum from the canonical form and compares it to
// the stored value
func (p *OfflinePackage) Verify() (bool, error) {
	data, err := p.Serialize()
	if err != nil {
		return false, err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == p.Checksum && p.Size == int64(len(data)), nil
}
