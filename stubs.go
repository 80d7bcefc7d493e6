//go:build !linux

package ept

import "fmt"

// Supported returns false on non-Linux platforms.
func Supported() (bool, error) {
	return false, fmt.Errorf("ept: not supported on this platform")
}
