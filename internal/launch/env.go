// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/berthbuild/berth/pkg/descriptor"
)

// Environment returns the variables and working directory for running the
// launch command of d from the project checkout at root.
//
// The declared variable set and the module search path are always applied.
// Inside the image (root is the image's working directory) they are used
// as-is. From a checkout, container paths under the source destination are
// mapped to the source tree on the host, so PYTHONPATH=/app becomes
// <root>/app for the default layout and the process starts there.
func Environment(root string, d *descriptor.Descriptor) (env []string, dir string) {
	vars := d.RuntimeEnv()
	workDir := string(d.WorkDir)
	if filepath.Clean(root) == filepath.FromSlash(workDir) {
		return vars.Environ(), workDir
	}

	srcDest := path.Join(workDir, d.Source.Dest)
	hostSrc := filepath.Join(root, filepath.FromSlash(d.Source.Path))
	toHost := func(p string) (string, bool) {
		if p == srcDest {
			return hostSrc, true
		}
		if rest, ok := strings.CutPrefix(p, strings.TrimSuffix(srcDest, "/")+"/"); ok {
			return filepath.Join(hostSrc, filepath.FromSlash(rest)), true
		}
		return p, false
	}

	modName := string(descriptor.ModulePathEnv)
	parts := strings.Split(vars[modName], ":")
	for i, p := range parts {
		parts[i], _ = toHost(p)
	}
	vars[modName] = strings.Join(parts, string(os.PathListSeparator))

	dir, ok := toHost(workDir)
	if !ok {
		dir = hostSrc
	}
	return vars.Environ(), dir
}
