// SPDX-License-Identifier: MPL-2.0

package enginetest

const (
	// Python311 is the CPython 3.11 interpreter of the Manylinux fixture.
	Python311 = "/opt/python/cp311-cp311/bin/python"
	// Python312 is the CPython 3.12 interpreter of the Manylinux fixture.
	Python312 = "/opt/python/cp312-cp312/bin/python"
)

// Manylinux returns an engine answering like a manylinux_2_28 image with two
// CPython interpreters.
func Manylinux() *Engine {
	e := New()
	e.GlobMatches = []string{Python311, Python312}
	e.Script(Response{Stdout: "NAME=\"AlmaLinux\"\nPRETTY_NAME=\"AlmaLinux 8.10 (Cerulean Leopard)\"\n"}, "cat", "/etc/os-release").
		Script(Response{Stdout: "AlmaLinux release 8.10 (Cerulean Leopard)\n"}, "cat", "/etc/redhat-release").
		Script(Response{Stdout: "ldd (GNU libc) 2.28\nCopyright (C) 2018 Free Software Foundation, Inc.\n"}, "ldd", "--version").
		Script(Response{Stdout: "/usr/bin/dnf\n"}, "which", "dnf").
		Script(Response{Stdout: "/usr/bin/yum\n"}, "which", "yum").
		Script(Response{Stdout: "auditwheel 6.1.0 installed at /opt/_internal/pipx/venvs/auditwheel\n"}, "auditwheel", "--version").
		Script(Response{Stdout: "patchelf 0.17.2\n"}, "patchelf", "--version").
		Script(Response{Stdout: "git version 2.43.5\n"}, "git", "--version").
		Script(Response{Stdout: "curl 8.9.1 (x86_64-pc-linux-gnu) libcurl/8.9.1\n"}, "curl", "--version").
		Script(Response{Stdout: "OpenSSL 1.1.1k  FIPS 25 Mar 2021\n"}, "openssl", "version").
		Script(Response{Stdout: "1.7.1\n"}, "pipx", "--version").
		Script(Response{Stdout: "auditwheel 6.1.0\ncmake 3.30.2\nnox 2024.4.15\n"}, "pipx", "list", "--short")

	for py, v := range map[string]string{Python311: "3.11.9", Python312: "3.12.5"} {
		e.Script(Response{Stdout: "Python " + v + "\n"}, py, "--version").
			Script(Response{Stdout: "72.1.0\n"}, py, "-c", "import setuptools; print(setuptools.__version__)").
			Script(Response{Stdout: "pip 24.2 from /opt/_internal/lib/site-packages/pip\n"}, py, "-m", "pip", "--version").
			Script(Response{Stdout: "setuptools==72.1.0\nwheel==0.44.0\n"}, py, "-m", "pip", "freeze")
	}
	return e
}
