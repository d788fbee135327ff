package llm

import "strings"

// ContentToString flattens possibly multi-part content into plain text.
//
// A single text block is returned verbatim. Otherwise each block becomes one
// line: text and thinking blocks with trailing whitespace trimmed, images as
// ImagePlaceholder, error blocks as their message. Empty content yields "".
func ContentToString(blocks []ContentBlock) string {
	if len(blocks) == 0 {
		return ""
	}
	if len(blocks) == 1 && blocks[0].Type == BlockTypeText {
		return blocks[0].Text
	}

	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case BlockTypeImage:
			parts = append(parts, ImagePlaceholder)
		default:
			parts = append(parts, strings.TrimRight(b.Text, " \t\r\n"))
		}
	}
	return strings.Join(parts, "\n")
}
