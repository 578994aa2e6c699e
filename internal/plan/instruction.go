// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"

	"github.com/berthbuild/berth/pkg/descriptor"
)

var bareValue = regexp.MustCompile(`^[A-Za-z0-9_./:=@%+,-]*$`)

// envPairs renders NAME=value pairs for ENV and LABEL.
func envPairs(vars []descriptor.EnvVar) string {
	pairs := make([]string, len(vars))
	for i, v := range vars {
		pairs[i] = string(v.Name) + "=" + quoteValue(v.Value)
	}
	return strings.Join(pairs, " ")
}

// quoteValue double-quotes a value unless it is a bare word. Inside the
// quotes, backslash, double quote and dollar are escaped so the builder
// performs no substitution.
func quoteValue(v string) string {
	if v != "" && bareValue.MatchString(v) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return `"` + r.Replace(v) + `"`
}

// copyInstruction renders COPY in shell form, or in JSON form when any
// argument contains whitespace.
func copyInstruction(srcs []string, dst string) string {
	args := append(append([]string(nil), srcs...), dst)
	for _, a := range args {
		if strings.ContainsAny(a, " \t") {
			data, _ := json.Marshal(args) // a []string always marshals
			return "COPY " + string(data)
		}
	}
	return "COPY " + strings.Join(args, " ")
}

// dirArg renders a relative directory with a trailing slash so COPY copies
// the directory's contents.
func dirArg(p string) string {
	p = path.Clean(p)
	if p == "." {
		return "./"
	}
	return p + "/"
}
