package compress

import "strings"

// extractSignatureDocstring implements the content-based fallback of
// SIGNATURE_DOCSTRING when a chunk carries no precomputed signature: read
// until the matched opening brace/colon, optionally capturing immediately
// preceding doc-comments, then append "..." (§4.6).
func extractSignatureDocstring(content, language string) string {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return "..."
	}

	switch language {
	case "python":
		return extractPythonSignatureDocstring(lines)
	default:
		// JS/TS/Rust/Go/generic: signature line(s) up to the opening
		// delimiter, plus any immediately preceding doc-comment block.
		sig := signatureUpToDelimiter(lines)
		doc := precedingDocComment(lines, language)
		if doc != "" {
			return doc + "\n" + sig + "\n    ..."
		}
		return sig + "\n    ..."
	}
}

// extractSignature implements the content-based SIGNATURE_ONLY fallback.
func extractSignature(content, language string) string {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return "..."
	}
	if language == "python" {
		return lines[0] + "\n    ..."
	}
	return signatureUpToDelimiter(lines) + "\n    ..."
}

func extractPythonSignatureDocstring(lines []string) string {
	var result []string
	inDocstring := false
	delim := ""

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if i == 0 {
			result = append(result, line)
			continue
		}
		if !inDocstring {
			if strings.HasPrefix(stripped, `"""`) || strings.HasPrefix(stripped, `'''`) {
				inDocstring = true
				delim = stripped[:3]
				result = append(result, line)
				if strings.HasSuffix(stripped, delim) && len(stripped) > 3 {
					inDocstring = false
					break
				}
				continue
			}
			if stripped != "" && !strings.HasPrefix(stripped, "#") {
				break
			}
			continue
		}
		result = append(result, line)
		if strings.HasSuffix(stripped, delim) {
			inDocstring = false
			break
		}
	}
	result = append(result, "    ...")
	return strings.Join(result, "\n")
}

// signatureUpToDelimiter returns the lines up to and including the first
// line containing an opening brace or a trailing colon.
func signatureUpToDelimiter(lines []string) string {
	var result []string
	for _, line := range lines {
		result = append(result, line)
		trimmed := strings.TrimSpace(line)
		if strings.Contains(line, "{") || strings.HasSuffix(trimmed, ":") {
			break
		}
		if len(result) >= 5 { // bound runaway multi-line signatures
			break
		}
	}
	return strings.Join(result, "\n")
}

// precedingDocComment is a best-effort scan backward from the top of a
// snippet for an attached doc-comment; since compressed chunks only carry
// the forward body, this returns "" unless the first line already looks like
// a doc-comment opener (JSDoc "/**", Rust "///"/"//!").
func precedingDocComment(lines []string, language string) string {
	if len(lines) == 0 {
		return ""
	}
	first := strings.TrimSpace(lines[0])
	switch language {
	case "javascript", "typescript":
		if strings.HasPrefix(first, "/**") {
			return lines[0]
		}
	case "rust":
		if strings.HasPrefix(first, "///") || strings.HasPrefix(first, "//!") {
			return lines[0]
		}
	}
	return ""
}
