package core

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// GenerateUnifiedDiff produces a patch from the stored value to the candidate
// value. Returns an empty string when they are identical.
func GenerateUnifiedDiff(name, stored, candidate string) string {
	if stored == candidate {
		return ""
	}

	dmp := diffmatchpatch.New()

	// Line-mode diff for readable output on multi-line secrets
	a, b, lineArray := dmp.DiffLinesToChars(stored, candidate)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(stored, diffs)
	if len(patches) == 0 {
		return ""
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- vault/%s\n", name))
	result.WriteString(fmt.Sprintf("+++ local/%s\n", name))
	result.WriteString(dmp.PatchToText(patches))

	return result.String()
}
