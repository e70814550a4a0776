package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return the
	// built-in default, or an error for unknown names.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptAnalysisSystem is the fixed analysis preamble. It tells the model
	// how to phrase insight and how to emit chart blocks. It has no
	// format placeholders.
	PromptAnalysisSystem = "analysis_system"
)
