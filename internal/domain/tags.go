package domain

import (
	"regexp"
	"sort"
	"strings"
)

// tagPattern matches a hashtag at the start of the content or after
// whitespace or an opening bracket. Markdown headings ("# Title") never
// match because the hash must be followed directly by a tag character.
var tagPattern = regexp.MustCompile(`(?:^|[\s(\[])#([\p{L}\p{N}_][\p{L}\p{N}_/-]*)`)

// ExtractTags returns the hashtags found in content, lower-cased,
// de-duplicated and sorted. It is deterministic and idempotent: the same
// content always yields the same tags, and extracting tags from a note
// whose tags were already extracted changes nothing.
func ExtractTags(content string) []string {
	matches := tagPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(strings.TrimRight(m[1], "/-"))
		if tag == "" || isNumeric(tag) {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return nil
	}
	sort.Strings(tags)
	return tags
}

// isNumeric filters issue references such as "#42".
func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
