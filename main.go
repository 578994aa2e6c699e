// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/berthbuild/berth/cmd/berth"

func main() {
	cmd.Execute()
}
