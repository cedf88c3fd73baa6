package tools

// ToolResult is what every tool hands back. ForLLM goes into the history as
// the observation; ForUser, when set, is surfaced directly on the channel.
type ToolResult struct {
	ForLLM  string
	ForUser string
	Silent  bool
	IsError bool
	Err     error
}

// Result builds a plain success result.
func Result(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

// UserResult builds a result with distinct model and user renderings.
func UserResult(forLLM, forUser string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, ForUser: forUser}
}

// SilentResult succeeds without anything being shown to the user.
func SilentResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, Silent: true}
}

// ErrorResult builds a failed result; the text still reaches the model so it
// can react to the failure.
func ErrorResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, IsError: true}
}

// WithError attaches the underlying error for logging.
func (r *ToolResult) WithError(err error) *ToolResult {
	r.Err = err
	return r
}
