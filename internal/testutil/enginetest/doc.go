// SPDX-License-Identifier: MPL-2.0

// Package enginetest provides an in-memory container.Engine for tests that
// drive whole inspections without a container runtime.
//
// This package is separate from testutil to avoid import cycles, since
// testutil is used by internal/container tests.
//
// # Usage
//
//	engine := enginetest.Manylinux()
//	engine.FailExec("ldd", errors.New("daemon went away"))
//	ins := inspector.New(engine, store, inspector.Options{})
package enginetest
