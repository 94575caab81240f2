package summarizer

import (
	"fmt"

	"github.com/temirov/recap/internal/types"
)

const fileInstruction = `You summarize one source file (or one part of a larger file) for a project README.
Describe what the code does and what it is for in 2-4 plain sentences.
Name the important types, functions, commands or settings it defines.
Do not speculate beyond the content. Do not include code blocks.`

const mergeInstruction = `You combine summaries of the parts of a software project into one summary of the whole.
Each input is labeled with the path it describes.
Write one cohesive paragraph of at most 6 sentences describing the purpose of the whole
and how its parts fit together. Mention the most important parts by name.
Do not repeat the labels verbatim and do not invent features that the inputs do not mention.`

const (
	fileInputFormat      = "File: %s\n\n%s"
	fileChunkInputFormat = "File: %s (part %d of %d)\n\n%s"
	mergeInputFormat     = "Path: %s\n\n%s"
)

// instructionFor returns the system instruction for role.
func instructionFor(role types.Role) string {
	if role == types.RoleMerge {
		return mergeInstruction
	}
	return fileInstruction
}

// inputFor renders the request body sent to the provider.
func inputFor(request Request, text string) string {
	switch {
	case request.Role == types.RoleMerge:
		return fmt.Sprintf(mergeInputFormat, request.Path, text)
	case request.Total > 1:
		return fmt.Sprintf(fileChunkInputFormat, request.Path, request.Chunk+1, request.Total, text)
	default:
		return fmt.Sprintf(fileInputFormat, request.Path, text)
	}
}
