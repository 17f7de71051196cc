package domain

// Intent categories emitted by the classifier. This is an open set: the
// remote model may emit values outside it, and consumers must treat unknown
// values as pass-through rather than fatal.
const (
	IntentConversation  = "CONVERSATION"
	IntentTaskExecution = "TASK_EXECUTION"
	IntentDataQuery     = "DATA_QUERY"
	IntentError         = "ERROR"
)

// Well-known action identifiers. Actions are free-form strings; these are the
// ones the dispatcher has handlers for.
const (
	ActionScheduleReminder = "schedule_reminder"
	ActionGetWeather       = "get_weather"
	ActionAnswerQuestion   = "answer_question"
	ActionSendMessage      = "send_message"
	ActionOpenApp          = "open_app"
	ActionAPIFailure       = "api_failure"
	ActionConfigError      = "config_error"
)

// StructuredIntent is the parsed contract returned by the classifier, one per
// command. TextResponse is the only field guaranteed to be present and must
// always be deliverable to the user, including on classifier failure.
type StructuredIntent struct {
	Intent       string         `json:"intent"`
	Action       string         `json:"action"`
	Args         map[string]any `json:"args,omitempty"`
	TextResponse string         `json:"text_response"`
}

// Arg returns the named action argument as a string, or "" if it is absent or
// not a string. Arg shapes depend on the action and the remote model is not
// trusted to follow them.
func (si StructuredIntent) Arg(key string) string {
	v, ok := si.Args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// IsError reports whether this intent was synthesized from a classifier
// failure.
func (si StructuredIntent) IsError() bool {
	return si.Intent == IntentError
}

// NeedsDispatch reports whether the orchestrator should route this intent
// through the task dispatcher.
func (si StructuredIntent) NeedsDispatch() bool {
	return si.Intent == IntentTaskExecution || si.Intent == IntentDataQuery
}
