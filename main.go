// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/manylinux-inspector/manylinux-inspector/cmd/inspector"

func main() {
	cmd.Execute()
}
