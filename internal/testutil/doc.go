// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include file fixtures (MustWriteFile, MustReadFile,
// MustMkdirAll), environment management (SetConfigHome), a controllable
// FakeClock and ContainerSemaphore for tests that start real containers.
package testutil
