// SPDX-License-Identifier: MPL-2.0

package probe

import (
	"regexp"
	"slices"
	"strings"
)

type (
	// Tool is a named version string.
	Tool struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}

	// PythonEnv summarises one bundled interpreter.
	PythonEnv struct {
		// Identifier is the interpreter directory name, e.g. cp311-cp311
		Identifier string `json:"identifier"`
		Path       string `json:"path"`
		// Version is empty when the interpreter did not report one
		Version string `json:"version,omitempty"`
		// Tools holds pip, setuptools and every frozen package, in that order
		Tools []Tool `json:"tools,omitempty"`
	}

	// Summary is the flat report derived from a probe log. Empty strings mean
	// the value could not be determined.
	Summary struct {
		OS             string      `json:"os,omitempty"`
		Libc           string      `json:"libc,omitempty"`
		PackageManager string      `json:"package_manager,omitempty"`
		GlobalTools    []Tool      `json:"global_tools,omitempty"`
		Pythons        []PythonEnv `json:"pythons,omitempty"`
	}

	// outputPart selects which captured stream a lookup returns.
	outputPart int

	logView []LogEntry
)

const (
	partStdout outputPart = iota
	partAll
)

var (
	prettyNameRe = regexp.MustCompile(`PRETTY_NAME=(.*)`)
	interpIDRe   = regexp.MustCompile(`^([cp]p)(\d)(\d+).*`)
	variantRe    = regexp.MustCompile(`[a-z]+$`)

	toolExtractors = []struct {
		name    string
		command []string
		re      *regexp.Regexp
	}{
		{"auditwheel", []string{"auditwheel", "--version"}, regexp.MustCompile(`auditwheel (\S+)`)},
		{"patchelf", []string{"patchelf", "--version"}, regexp.MustCompile(`patchelf (\S+)`)},
		{"git", []string{"git", "--version"}, regexp.MustCompile(`git version (\S+)`)},
		{"curl", []string{"curl", "--version"}, regexp.MustCompile(`curl (\S+)`)},
		{"openssl", []string{"openssl", "version"}, regexp.MustCompile(`OpenSSL (\S+)`)},
		{"pipx", []string{"pipx", "--version"}, regexp.MustCompile(`(\S+)`)},
	}
)

// Summarize derives the flat report from a probe log.
func Summarize(log []LogEntry) Summary {
	v := logView(log)
	return Summary{
		OS:             v.operatingSystem(),
		Libc:           v.libc(),
		PackageManager: v.packageManager(),
		GlobalTools:    v.globalTools(),
		Pythons:        v.pythons(),
	}
}

// output returns the captured output of the first entry whose command equals
// command. Failed commands only count when allowFail is set.
func (v logView) output(command []string, part outputPart, allowFail bool) (string, bool) {
	for _, e := range v {
		if !slices.Equal(e.Command, command) {
			continue
		}
		if !e.OK() && !allowFail {
			return "", false
		}
		if part == partAll {
			return e.Stdout + e.Stderr, true
		}
		return e.Stdout, true
	}
	return "", false
}

func (v logView) operatingSystem() string {
	if osRelease, ok := v.output([]string{"cat", "/etc/os-release"}, partStdout, false); ok && osRelease != "" {
		m := prettyNameRe.FindStringSubmatch(osRelease)
		if m == nil {
			return osRelease
		}
		name := strings.TrimSpace(m[1])
		if strings.HasPrefix(name, `"`) {
			name = strings.TrimPrefix(name, `"`)
			name = strings.TrimSuffix(name, `"`)
		}
		return name
	}
	redhat, _ := v.output([]string{"cat", "/etc/redhat-release"}, partStdout, false)
	return strings.TrimSpace(redhat)
}

// libc keeps stdout and stderr since musl's ldd prints to stderr and exits 1.
func (v logView) libc() string {
	out, ok := v.output([]string{"ldd", "--version"}, partAll, true)
	if !ok {
		return ""
	}
	first, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(first)
}

func (v logView) packageManager() string {
	var found []string
	for _, pm := range PackageManagers {
		if out, ok := v.output([]string{"which", pm}, partStdout, false); ok && out != "" {
			found = append(found, pm)
		}
	}
	return strings.Join(found, ", ")
}

func (v logView) globalTools() []Tool {
	var tools orderedTools

	if list, ok := v.output([]string{"pipx", "list", "--short"}, partStdout, false); ok {
		for line := range strings.SplitSeq(strings.TrimSpace(list), "\n") {
			if line == "" {
				continue
			}
			name, version, _ := strings.Cut(line, " ")
			version, _, _ = strings.Cut(version, " ")
			tools.set(name, version)
		}
	}

	for _, ex := range toolExtractors {
		out, ok := v.output(ex.command, partStdout, false)
		if !ok {
			continue
		}
		if m := ex.re.FindStringSubmatch(out); m != nil && m[1] != "" {
			tools.set(ex.name, m[1])
		}
	}

	return tools.list
}

func (v logView) pythons() []PythonEnv {
	var paths []string
	for _, e := range v {
		if len(e.Command) > 0 && strings.HasSuffix(e.Command[0], "/bin/python") && !slices.Contains(paths, e.Command[0]) {
			paths = append(paths, e.Command[0])
		}
	}

	envs := make([]PythonEnv, 0, len(paths))
	for _, path := range paths {
		envs = append(envs, v.python(path))
	}
	return envs
}

func (v logView) python(path string) PythonEnv {
	env := PythonEnv{Identifier: PythonIdentifier(path), Path: path}
	call := func(part outputPart, args ...string) (string, bool) {
		return v.output(append([]string{path}, args...), part, false)
	}

	if out, ok := call(partAll, "--version"); ok {
		if words := strings.Split(out, " "); len(words) > 1 {
			env.Version = strings.TrimSpace(words[1])
		}
	}

	if out, ok := call(partStdout, "-m", "pip", "--version"); ok {
		if words := strings.Split(out, " "); len(words) > 1 && words[1] != "" {
			env.Tools = append(env.Tools, Tool{Name: "pip", Version: words[1]})
		}
	}

	if out, ok := call(partStdout, "-c", "import setuptools; print(setuptools.__version__)"); ok && out != "" {
		env.Tools = append(env.Tools, Tool{Name: "setuptools", Version: strings.TrimSpace(out)})
	}

	if out, ok := call(partStdout, "-m", "pip", "freeze"); ok && out != "" {
		for line := range strings.SplitSeq(strings.TrimSpace(out), "\n") {
			name, version, found := strings.Cut(strings.TrimSpace(line), "==")
			if !found {
				continue
			}
			env.Tools = append(env.Tools, Tool{Name: name, Version: version})
		}
	}

	return env
}

// PythonIdentifier returns the interpreter directory of a path like
// /opt/python/cp37-cp37m/bin/python.
func PythonIdentifier(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 3 {
		return parts[3]
	}
	return path
}

// PrettyName turns an interpreter identifier into a display name:
// cp311-cp311 -> "CPython 3.11", pp310-pypy310_pp73 -> "PyPy 3.10".
// Python 2.7 identifiers also yield their ABI variant (e.g. "mu").
func PrettyName(identifier string) (name, variant string) {
	m := interpIDRe.FindStringSubmatch(identifier)
	if m == nil {
		return identifier, ""
	}

	interpreter := m[1]
	switch interpreter {
	case "cp":
		interpreter = "CPython"
	case "pp":
		interpreter = "PyPy"
	}

	major, minor := m[2], m[3]
	if major == "2" && minor == "7" {
		variant = variantRe.FindString(identifier)
	}

	return interpreter + " " + major + "." + minor, variant
}

// orderedTools keeps first-insertion order while letting later values win.
type orderedTools struct {
	list []Tool
}

func (o *orderedTools) set(name, version string) {
	for i := range o.list {
		if o.list[i].Name == name {
			o.list[i].Version = version
			return
		}
	}
	o.list = append(o.list, Tool{Name: name, Version: version})
}
