package wsi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blang/semver"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// Version is the semantic version of this wsiview build.
var Version = semver.MustParse("0.4.1")

// NumCPU is the number of cores available to this process for parallel work.
var NumCPU int = 1

// ConvertToAbsolute returns an absolute path for path, which if relative is taken
// relative to the given base directory.
func ConvertToAbsolute(path, base string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	abs, err := filepath.Abs(filepath.Join(base, path))
	if err != nil {
		return "", fmt.Errorf("unable to convert %q relative to %q: %v", path, base, err)
	}
	return abs, nil
}

// FileExists returns true if a regular file or directory exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Command supports command-line interaction.  The first item in the string slice is
// the command, e.g., "serve" or "convert".  The other arguments are command arguments
// or optional settings of the form "<key>=<value>".
type Command []string

// String returns a space-separated command line
func (cmd Command) String() string {
	return strings.Join([]string(cmd), " ")
}

// Name returns the first argument which is assumed to be the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0]
}

// Argument returns the i-th positional argument, where 0 is the command name, ignoring
// any "key=value" settings.  It returns the empty string if there is no such argument.
func (cmd Command) Argument(pos int) string {
	var n int
	for _, arg := range cmd {
		if isSetting(arg) {
			continue
		}
		if n == pos {
			return arg
		}
		n++
	}
	return ""
}

// Setting scans a command for any "key=value" argument and returns
// the value of the passed 'key'.
func (cmd Command) Setting(key string) (value string, found bool) {
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			if !isSetting(arg) {
				continue
			}
			elems := strings.SplitN(arg, "=", 2)
			if strings.EqualFold(elems[0], key) {
				return elems[1], true
			}
		}
	}
	return "", false
}

// isSetting returns true for "key=value" arguments.  Paths and URLs that happen to
// contain '=' (e.g., query strings) are not settings.
func isSetting(arg string) bool {
	i := strings.Index(arg, "=")
	return i > 0 && !strings.ContainsAny(arg[:i], "/:.\\")
}
