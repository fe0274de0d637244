package sync

import (
	"os"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/rclouned/rclouned/internal/config"
)

// defaultIgnoreLines always apply: rclouned's own state folder and the
// usual OS/editor junk nobody wants mirrored.
var defaultIgnoreLines = []string{
	config.StateDirName + "/",
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.partial",
	"*.swp",
}

// IgnoreList filters scanned paths with gitignore semantics. User patterns
// come from the ignore file under the state dir, one pattern per line.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
}

// NewIgnoreList builds the list from the defaults plus, when present, the
// patterns in the given file. A missing file is not an error.
func NewIgnoreList(patternsFile string) *IgnoreList {
	lines := make([]string, 0, len(defaultIgnoreLines))
	lines = append(lines, defaultIgnoreLines...)

	if data, err := os.ReadFile(patternsFile); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				lines = append(lines, line)
			}
		}
	}

	return &IgnoreList{ignore: gitignore.CompileIgnoreLines(lines...)}
}

func (l *IgnoreList) ShouldIgnore(path string) bool {
	return l.ignore.MatchesPath(path)
}
