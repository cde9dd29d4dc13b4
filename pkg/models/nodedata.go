package models

// Typed node payloads. Each node type carries one of these structs, decoded
// from the node's raw data bag when the graph is compiled. Field names match
// the JSON produced by the flow editor.

// PromptMode selects between live text-to-speech and a pre-rendered asset.
type PromptMode string

const (
	PromptModeText PromptMode = "text"
	PromptModeFile PromptMode = "file"
)

// GreetingData plays an opening prompt and auto-advances.
type GreetingData struct {
	Text     string `json:"text"      mapstructure:"text"`
	AudioURL string `json:"audio_url" mapstructure:"audio_url"`
}

// AudioData plays a prompt in text or file mode. When WaitForInput is set the
// node issues a bounded digit-collection instruction instead of auto-advancing.
type AudioData struct {
	Mode         PromptMode `json:"mode"           mapstructure:"mode"`
	Text         string     `json:"text"           mapstructure:"text"`
	AudioURL     string     `json:"audio_url"      mapstructure:"audio_url"`
	WaitForInput bool       `json:"wait_for_input" mapstructure:"wait_for_input"`
	NumDigits    int        `json:"num_digits"     mapstructure:"num_digits"`
	TimeoutSec   int        `json:"timeout"        mapstructure:"timeout"`
}

// InputData collects digits and routes on them. Routes maps a digit to a
// destination node id; this is the legacy secondary routing table consulted
// alongside digit-handled edges.
type InputData struct {
	Text          string            `json:"text"           mapstructure:"text"`
	AudioURL      string            `json:"audio_url"      mapstructure:"audio_url"`
	NumDigits     int               `json:"num_digits"     mapstructure:"num_digits"`
	TimeoutSec    int               `json:"timeout"        mapstructure:"timeout"`
	MaxAttempts   int               `json:"max_attempts"   mapstructure:"max_attempts"`
	Routes        map[string]string `json:"routes"         mapstructure:"routes"`
	InvalidPrompt string            `json:"invalid_prompt" mapstructure:"invalid_prompt"`
	TimeoutPrompt string            `json:"timeout_prompt" mapstructure:"timeout_prompt"`
}

// TransferData dials a destination number. With no destination the node
// degrades to an apology and hangup.
type TransferData struct {
	Destination string `json:"destination" mapstructure:"destination"`
	CallerID    string `json:"caller_id"   mapstructure:"caller_id"`
	TimeoutSec  int    `json:"timeout"     mapstructure:"timeout"`
}

// VoicemailData records a message after an optional prompt.
type VoicemailData struct {
	Text         string `json:"text"           mapstructure:"text"`
	MaxLengthSec int    `json:"max_length"     mapstructure:"max_length"`
	Transcribe   bool   `json:"transcribe"     mapstructure:"transcribe"`
}

// RepeatData replays the previous prompt up to MaxRepeats times.
type RepeatData struct {
	MaxRepeats int `json:"max_repeats" mapstructure:"max_repeats"`
}

// QueueData places the caller into a named queue.
type QueueData struct {
	QueueName    string `json:"queue_name"     mapstructure:"queue_name"`
	WaitMusicURL string `json:"wait_music_url" mapstructure:"wait_music_url"`
}

// ConditionalData evaluates either an explicit (variable, operator, value)
// expression or a named preset predicate and follows the true/false edge.
type ConditionalData struct {
	Variable string `json:"variable" mapstructure:"variable"`
	Operator string `json:"operator" mapstructure:"operator"`
	Value    string `json:"value"    mapstructure:"value"`

	// Preset predicate configuration; Preset empty means explicit expression.
	Preset    string   `json:"preset"     mapstructure:"preset"`
	Timezone  string   `json:"timezone"   mapstructure:"timezone"`
	OpenHour  int      `json:"open_hour"  mapstructure:"open_hour"`
	CloseHour int      `json:"close_hour" mapstructure:"close_hour"`
	Days      []string `json:"days"       mapstructure:"days"`
	Tier      string   `json:"tier"       mapstructure:"tier"`
}

// SetVariableData writes a value (itself substitutable) and auto-advances.
type SetVariableData struct {
	Name  string `json:"name"  mapstructure:"name"`
	Value string `json:"value" mapstructure:"value"`
}

// APICallData performs a bounded synchronous outbound request. The response
// status and body are stored under ResponseVariable; transport failures
// always follow the error edge.
type APICallData struct {
	URL              string            `json:"url"               mapstructure:"url"`
	Method           string            `json:"method"            mapstructure:"method"`
	Headers          map[string]string `json:"headers"           mapstructure:"headers"`
	Body             string            `json:"body"              mapstructure:"body"`
	TimeoutSec       int               `json:"timeout"           mapstructure:"timeout"`
	ResponseVariable string            `json:"response_variable" mapstructure:"response_variable"`
}

// SmsData sends a text message during the call and auto-advances.
type SmsData struct {
	To      string `json:"to"      mapstructure:"to"`
	From    string `json:"from"    mapstructure:"from"`
	Message string `json:"message" mapstructure:"message"`
}

// AIAssistantData hands the call off to a conversational assistant endpoint.
type AIAssistantData struct {
	AssistantURL string `json:"assistant_url" mapstructure:"assistant_url"`
	Greeting     string `json:"greeting"      mapstructure:"greeting"`
	TimeoutSec   int    `json:"timeout"       mapstructure:"timeout"`
}

// EndData terminates the call with optional best-effort post-call side
// effects; none of them may block termination.
type EndData struct {
	FarewellText     string `json:"farewell_text"      mapstructure:"farewell_text"`
	SurveySmsMessage string `json:"survey_sms_message" mapstructure:"survey_sms_message"`
	ReceiptEmail     bool   `json:"receipt_email"      mapstructure:"receipt_email"`
	CallbackDelayMin int    `json:"callback_delay_min" mapstructure:"callback_delay_min"`
}
