// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompileconfig defines the configuration contract shared by all
// stateful precompiles. Configs are decoded from genesis or upgrade JSON.
package precompileconfig

// Config is the configuration of a single precompile activation
type Config interface {
	// Key returns the JSON key identifying the precompile
	Key() string
	// Timestamp returns the activation timestamp, nil for genesis
	Timestamp() *uint64
	// IsDisabled returns true if this config deactivates the precompile
	IsDisabled() bool
	// Equal reports whether two configs are identical
	Equal(Config) bool
	// Verify validates the config before activation
	Verify() error
}

// Upgrade contains the activation fields common to every precompile config
type Upgrade struct {
	BlockTimestamp *uint64 `json:"blockTimestamp,omitempty"`
	Disable        bool    `json:"disable,omitempty"`
}

// Timestamp returns the activation timestamp
func (u *Upgrade) Timestamp() *uint64 {
	return u.BlockTimestamp
}

// Equal returns true if u and other activate at the same time with the same disable flag
func (u *Upgrade) Equal(other *Upgrade) bool {
	if other == nil {
		return false
	}
	if u.Disable != other.Disable {
		return false
	}
	switch {
	case u.BlockTimestamp == nil && other.BlockTimestamp == nil:
		return true
	case u.BlockTimestamp == nil || other.BlockTimestamp == nil:
		return false
	default:
		return *u.BlockTimestamp == *other.BlockTimestamp
	}
}
