package cli

// Default values for CLI flags and output formatting.
const (
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// CommentPrefix starts an ignored line in an extension list file.
	CommentPrefix = "#"
	// percentScale converts a byte ratio into a percentage.
	percentScale = 100
)
