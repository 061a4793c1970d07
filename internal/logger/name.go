package logger

// ToolName is the fixed name for this tool.
const ToolName = "exchangetest"

// LogPrefix returns the filename prefix used for run log files.
func LogPrefix() string { return ToolName }
