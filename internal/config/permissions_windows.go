// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

//go:build windows

package config

// WarnInsecurePermissions is a no-op on Windows, where POSIX permission
// bits do not describe actual file access.
func WarnInsecurePermissions(path string) {}
