//go:build !unix

package fsys

func isEXDEV(error) bool { return false }
