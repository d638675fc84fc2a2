package compress

import (
	"regexp"
	"strings"
)

var blockCommentRe = regexp.MustCompile(`/\*.*?\*/`)

// StripComments removes line- and block-comments per language, preserving
// Python docstrings and Rust/JSDoc doc-comments, per §4.6.
func StripComments(content, language string) string {
	lines := strings.Split(content, "\n")
	var out []string
	inBlockComment := false
	inPythonMultiline := false

	for _, line := range lines {
		stripped := strings.TrimSpace(line)

		switch language {
		case "python":
			if strings.HasPrefix(stripped, "#") && !strings.HasPrefix(stripped, "#!") {
				continue
			}
			if strings.Contains(stripped, `"""`) || strings.Contains(stripped, `'''`) {
				count := strings.Count(stripped, `"""`) + strings.Count(stripped, `'''`)
				if count%2 == 1 {
					inPythonMultiline = !inPythonMultiline
				}
				out = append(out, line)
				continue
			}
			if inPythonMultiline {
				out = append(out, line)
				continue
			}
		case "javascript", "typescript":
			if strings.HasPrefix(stripped, "//") {
				continue
			}
			if strings.Contains(stripped, "/**") {
				// JSDoc block: kept verbatim (§4.6 "JSDoc stays").
				out = append(out, line)
				if strings.Contains(stripped, "*/") {
					continue
				}
				inBlockComment = true
				continue
			}
			if strings.Contains(stripped, "/*") {
				if strings.Contains(stripped, "*/") {
					cleaned := blockCommentRe.ReplaceAllString(line, "")
					if strings.TrimSpace(cleaned) != "" {
						out = append(out, cleaned)
					}
					continue
				}
				inBlockComment = true
				continue
			}
			if inBlockComment {
				if strings.Contains(stripped, "*/") {
					inBlockComment = false
				}
				continue
			}
		case "rust":
			if strings.HasPrefix(stripped, "///") || strings.HasPrefix(stripped, "//!") {
				// Doc-comments are preserved (§4.6).
				out = append(out, line)
				continue
			}
			if strings.HasPrefix(stripped, "//") {
				continue
			}
			if strings.Contains(stripped, "/*") {
				if strings.Contains(stripped, "*/") {
					cleaned := blockCommentRe.ReplaceAllString(line, "")
					if strings.TrimSpace(cleaned) != "" {
						out = append(out, cleaned)
					}
					continue
				}
				inBlockComment = true
				continue
			}
			if inBlockComment {
				if strings.Contains(stripped, "*/") {
					inBlockComment = false
				}
				continue
			}
		case "go", "java", "c", "cpp":
			if strings.HasPrefix(stripped, "//") {
				continue
			}
			if strings.Contains(stripped, "/*") {
				if strings.Contains(stripped, "*/") {
					cleaned := blockCommentRe.ReplaceAllString(line, "")
					if strings.TrimSpace(cleaned) != "" {
						out = append(out, cleaned)
					}
					continue
				}
				inBlockComment = true
				continue
			}
			if inBlockComment {
				if strings.Contains(stripped, "*/") {
					inBlockComment = false
				}
				continue
			}
		}

		if !inBlockComment {
			switch language {
			case "javascript", "typescript", "rust", "go", "java", "c", "cpp":
				// Trailing line comment after code on the same line.
				if idx := strings.Index(line, " //"); idx >= 0 {
					line = strings.TrimRight(line[:idx], " \t")
				}
			}
			out = append(out, line)
		}
	}

	return strings.Join(out, "\n")
}
