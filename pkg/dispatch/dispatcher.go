// Package dispatch executes call flow nodes one webhook turn at a time. A
// turn starts at the entry node or resumes where the previous instruction
// deferred to a follow-up webhook, runs auto-advancing nodes until the flow
// waits on the caller again, and always produces a valid instruction
// document, however the turn went.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxflow/voxflow/pkg/conditions"
	"github.com/voxflow/voxflow/pkg/engine"
	"github.com/voxflow/voxflow/pkg/graph"
	"github.com/voxflow/voxflow/pkg/metrics"
	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/template"
	"github.com/voxflow/voxflow/pkg/voice"
)

const (
	// ApologyText is spoken whenever a turn cannot continue safely.
	ApologyText = "We are sorry, a system error has occurred. Please call again later. Goodbye."

	defaultGatherTimeoutSec = 5
	defaultGatherDigits     = 1
	defaultAPITimeoutSec    = 10
	maxAPITimeoutSec        = 30
	defaultMaxAttempts      = 3
	defaultMaxRepeats       = 3
	defaultRecordMaxSec     = 120
	defaultInputTimeoutSec  = 5

	lastPromptTextVar = "last_prompt_text"
	lastPromptURLVar  = "last_prompt_url"
	lastPromptNodeVar = "last_prompt_node"
)

// TurnInput carries what the inbound webhook delivered for the resumed node.
// HasInput distinguishes "webhook arrived with a result for this node" from
// a first visit; it is consumed by the first node of the turn.
type TurnInput struct {
	Digits       string
	RecordingURL string
	HasInput     bool
}

// Dispatcher walks a compiled graph for one call turn.
type Dispatcher struct {
	engine     *engine.Manager
	metrics    *metrics.Metrics
	logger     *slog.Logger
	httpClient *http.Client

	// baseURL prefixes the action callbacks embedded in gather and record
	// instructions, e.g. https://voice.example.com.
	baseURL string
}

func NewDispatcher(manager *engine.Manager, m *metrics.Metrics, logger *slog.Logger, baseURL string) *Dispatcher {
	return &Dispatcher{
		engine:     manager,
		metrics:    m,
		logger:     logger.With("module", "dispatch"),
		httpClient: &http.Client{Timeout: maxAPITimeoutSec * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// stepResult tells the turn loop what to do after one node.
type stepResult struct {
	next   string           // node to advance to; empty with wait/end unset means no route
	wait   bool             // instruction defers to a follow-up webhook
	end    bool             // execution is over
	reason models.EndReason // end reason when end is set
	err    error
}

// Run executes one webhook turn. The caller holds the per-call lock for the
// whole turn. Run never returns an unusable document: any failure path
// degrades to an apology and hangup.
func (d *Dispatcher) Run(ctx context.Context, g *graph.Graph, state *models.ExecutionState, startNodeID string, input TurnInput) (resp *voice.Response) {
	resp = voice.New()
	callID := state.CallID

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "dispatch panic",
				"call_id", callID, "workflow_id", g.WorkflowID, "panic", r)

			if err := d.engine.EndExecution(ctx, callID, models.EndReasonError, fmt.Errorf("dispatch panic: %v", r)); err != nil {
				d.logger.ErrorContext(ctx, "failed to end execution after panic", "call_id", callID, "error", err)
			}

			resp = voice.New().Say(ApologyText).Hangup()
		}
	}()

	nodeID := startNodeID

	for {
		node := g.Node(nodeID)
		if node == nil {
			d.endWith(ctx, callID, models.EndReasonError, fmt.Errorf("node %s not in graph", nodeID))

			return resp.Say(ApologyText).Hangup()
		}

		state, resp = d.trackAndRespond(ctx, resp, callID, node, input)
		if state == nil {
			return resp
		}

		started := time.Now()
		result := d.execute(ctx, resp, g, state, node, input)
		d.metrics.NodeDispatched(string(node.Type), time.Since(started).Seconds())

		// The webhook's payload belongs to the first node only.
		input = TurnInput{}

		switch {
		case result.err != nil:
			d.logger.ErrorContext(ctx, "node execution failed",
				"call_id", callID, "node_id", node.ID, "node_type", node.Type, "error", result.err)
			d.endWith(ctx, callID, models.EndReasonError, result.err)

			return resp.Say(ApologyText).Hangup()
		case result.end:
			d.endWith(ctx, callID, result.reason, nil)

			return resp
		case result.wait:
			return resp
		case result.next == "":
			// A sink that is not an end node still terminates cleanly.
			d.endWith(ctx, callID, models.EndReasonCompleted, nil)

			return resp.Hangup()
		default:
			nodeID = result.next
		}
	}
}

// trackAndRespond runs the safety checks for a visit. On refusal it ends the
// execution and finishes the response; the returned state is nil.
func (d *Dispatcher) trackAndRespond(ctx context.Context, resp *voice.Response, callID string, node *graph.CompiledNode, input TurnInput) (*models.ExecutionState, *voice.Response) {
	state, err := d.engine.TrackVisit(ctx, callID, node.ID, node.Type, input.Digits)
	if err == nil {
		return state, resp
	}

	if reason, ok := engine.IsLimitExceeded(err); ok {
		d.logger.WarnContext(ctx, "safety limit ended execution",
			"call_id", callID, "node_id", node.ID, "reason", reason)
		d.endWith(ctx, callID, reason, nil)

		return nil, resp.Say(ApologyText).Hangup()
	}

	if engine.IsExecutionNotFound(err) {
		// Already ended; acknowledge without speech.
		return nil, resp.Hangup()
	}

	d.endWith(ctx, callID, models.EndReasonError, err)

	return nil, resp.Say(ApologyText).Hangup()
}

func (d *Dispatcher) endWith(ctx context.Context, callID string, reason models.EndReason, cause error) {
	if err := d.engine.EndExecution(ctx, callID, reason, cause); err != nil {
		d.logger.ErrorContext(ctx, "failed to end execution",
			"call_id", callID, "reason", reason, "error", err)
	}
}

// execute runs one node. Payload types form a closed set; the default arm
// owns everything else.
func (d *Dispatcher) execute(ctx context.Context, resp *voice.Response, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, input TurnInput) stepResult {
	switch payload := node.Payload.(type) {
	case *models.GreetingData:
		return d.executeGreeting(ctx, resp, g, state, node, payload)
	case *models.AudioData:
		return d.executeAudio(ctx, resp, g, state, node, payload, input)
	case *models.InputData:
		return d.executeInput(ctx, resp, g, state, node, payload, input)
	case *models.TransferData:
		return d.executeTransfer(resp, state, payload)
	case *models.VoicemailData:
		return d.executeVoicemail(ctx, resp, g, state, node, payload, input)
	case *models.RepeatData:
		return d.executeRepeat(ctx, resp, g, state, node, payload)
	case *models.QueueData:
		return d.executeQueue(resp, state, payload)
	case *models.ConditionalData:
		return d.executeConditional(g, state, node, payload)
	case *models.SetVariableData:
		return d.executeSetVariable(ctx, g, state, node, payload)
	case *models.APICallData:
		return d.executeAPICall(ctx, g, state, node, payload)
	case *models.SmsData:
		return d.executeSms(resp, g, state, node, payload)
	case *models.AIAssistantData:
		return d.executeAIAssistant(resp, state, payload)
	case *models.EndData:
		return d.executeEnd(ctx, resp, state, payload)
	default:
		d.logger.ErrorContext(ctx, "unknown node type",
			"call_id", state.CallID, "node_id", node.ID, "node_type", node.Type)
		resp.Say(ApologyText).Hangup()

		return stepResult{end: true, reason: models.EndReasonError}
	}
}

func (d *Dispatcher) executeGreeting(ctx context.Context, resp *voice.Response, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.GreetingData) stepResult {
	d.playPrompt(ctx, resp, state, payload.Text, payload.AudioURL)

	return d.advance(g, node.ID)
}

func (d *Dispatcher) executeAudio(ctx context.Context, resp *voice.Response, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.AudioData, input TurnInput) stepResult {
	if !payload.WaitForInput {
		if payload.Mode == models.PromptModeFile {
			d.playPrompt(ctx, resp, state, "", payload.AudioURL)
		} else {
			d.playPrompt(ctx, resp, state, payload.Text, payload.AudioURL)
		}

		return d.advance(g, node.ID)
	}

	if input.HasInput {
		if edge := g.EdgeByHandle(node.ID, input.Digits); edge != nil {
			return stepResult{next: edge.Target}
		}

		return d.advance(g, node.ID)
	}

	d.gatherPrompt(ctx, resp, g, state, node.ID, gatherSpec{
		text:       payload.Text,
		audioURL:   payload.AudioURL,
		numDigits:  payload.NumDigits,
		timeoutSec: payload.TimeoutSec,
	})

	return stepResult{wait: true}
}

// gatherSpec is the prompt half of a digit-collection instruction.
type gatherSpec struct {
	text       string
	audioURL   string
	numDigits  int
	timeoutSec int
}

func (d *Dispatcher) gatherPrompt(ctx context.Context, resp *voice.Response, g *graph.Graph, state *models.ExecutionState, nodeID string, spec gatherSpec) {
	if spec.numDigits <= 0 {
		spec.numDigits = defaultGatherDigits
	}

	if spec.timeoutSec <= 0 {
		spec.timeoutSec = defaultGatherTimeoutSec
	}

	text := d.substitute(state, spec.text)

	resp.Gather(voice.GatherOptions{
		NumDigits: spec.numDigits,
		Timeout:   spec.timeoutSec,
		Action:    d.gatherAction(g.WorkflowID, nodeID),
		Text:      text,
		AudioURL:  spec.audioURL,
	})

	d.rememberPrompt(ctx, state, nodeID, text, spec.audioURL)
}

func (d *Dispatcher) executeInput(ctx context.Context, resp *voice.Response, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.InputData, input TurnInput) stepResult {
	maxAttempts := payload.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	if !input.HasInput {
		d.gatherPrompt(ctx, resp, g, state, node.ID, gatherSpec{
			text:       d.promptForAttempt(state, node.ID, payload),
			audioURL:   payload.AudioURL,
			numDigits:  payload.NumDigits,
			timeoutSec: payload.TimeoutSec,
		})

		return stepResult{wait: true}
	}

	if input.Digits == "" {
		// Caller stayed silent for the whole gather window.
		if edge := g.EdgeByHandle(node.ID, "timeout"); edge != nil {
			return stepResult{next: edge.Target}
		}

		return d.retryOrFallback(ctx, resp, g, state, node, payload, models.FailureReasonTimeout, maxAttempts)
	}

	if target := d.destinationTarget(g, node.ID, payload, input.Digits); target != "" {
		if err := d.engine.ResetInputAttempts(ctx, state.CallID, node.ID); err != nil {
			return stepResult{err: err}
		}

		if err := d.engine.SetVariable(ctx, state.CallID, "input_"+node.ID, input.Digits); err != nil {
			return stepResult{err: err}
		}

		return stepResult{next: target}
	}

	return d.retryOrFallback(ctx, resp, g, state, node, payload, models.FailureReasonInvalid, maxAttempts)
}

// destinationTarget resolves a digit to the next node. Digit-handled edges
// are the primary routing; the payload's routes table is a legacy secondary
// path kept behind this single lookup so it can be retired independently.
func (d *Dispatcher) destinationTarget(g *graph.Graph, nodeID string, payload *models.InputData, digit string) string {
	if edge := g.EdgeByHandle(nodeID, digit); edge != nil {
		return edge.Target
	}

	if target, ok := payload.Routes[digit]; ok && target != "" {
		if g.Node(target) != nil {
			return target
		}
	}

	return ""
}

func (d *Dispatcher) retryOrFallback(ctx context.Context, resp *voice.Response, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.InputData, failure models.FailureReason, maxAttempts int) stepResult {
	attempts, err := d.engine.RecordInputFailure(ctx, state.CallID, node.ID, failure)
	if err != nil {
		return stepResult{err: err}
	}

	if attempts >= maxAttempts {
		if edge := g.EdgeByHandle(node.ID, "no_match"); edge != nil {
			return stepResult{next: edge.Target}
		}

		if edge := g.EdgeByHandle(node.ID, "default"); edge != nil {
			return stepResult{next: edge.Target}
		}

		return d.advance(g, node.ID)
	}

	prompt := payload.InvalidPrompt
	if failure == models.FailureReasonTimeout {
		prompt = payload.TimeoutPrompt
	}

	if prompt == "" {
		prompt = payload.Text
	}

	d.gatherPrompt(ctx, resp, g, state, node.ID, gatherSpec{
		text:       prompt,
		audioURL:   payload.AudioURL,
		numDigits:  payload.NumDigits,
		timeoutSec: payload.TimeoutSec,
	})

	return stepResult{wait: true}
}

// promptForAttempt picks the reprompt matching why the previous attempt
// failed, falling back to the main prompt.
func (d *Dispatcher) promptForAttempt(state *models.ExecutionState, nodeID string, payload *models.InputData) string {
	if state.AttemptsByNode[nodeID] == 0 {
		return payload.Text
	}

	switch state.LastFailureByNode[nodeID] {
	case models.FailureReasonInvalid:
		if payload.InvalidPrompt != "" {
			return payload.InvalidPrompt
		}
	case models.FailureReasonTimeout:
		if payload.TimeoutPrompt != "" {
			return payload.TimeoutPrompt
		}
	}

	return payload.Text
}

func (d *Dispatcher) executeTransfer(resp *voice.Response, state *models.ExecutionState, payload *models.TransferData) stepResult {
	destination := d.substitute(state, payload.Destination)
	if destination == "" {
		resp.Say(ApologyText).Hangup()

		return stepResult{end: true, reason: models.EndReasonCompleted}
	}

	resp.Dial(destination, voice.DialOptions{
		CallerID: payload.CallerID,
		Timeout:  payload.TimeoutSec,
	})

	return stepResult{end: true, reason: models.EndReasonCompleted}
}

func (d *Dispatcher) executeVoicemail(ctx context.Context, resp *voice.Response, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.VoicemailData, input TurnInput) stepResult {
	if input.HasInput {
		if input.RecordingURL != "" {
			if err := d.engine.SetVariable(ctx, state.CallID, "recording_url", input.RecordingURL); err != nil {
				return stepResult{err: err}
			}
		}

		return d.advance(g, node.ID)
	}

	maxLength := payload.MaxLengthSec
	if maxLength <= 0 {
		maxLength = defaultRecordMaxSec
	}

	d.playPrompt(ctx, resp, state, payload.Text, "")
	resp.Record(voice.RecordOptions{
		Action:     d.recordingAction(g.WorkflowID, node.ID),
		MaxLength:  maxLength,
		Transcribe: payload.Transcribe,
		PlayBeep:   true,
	})

	return stepResult{wait: true}
}

func (d *Dispatcher) executeRepeat(ctx context.Context, resp *voice.Response, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.RepeatData) stepResult {
	maxRepeats := payload.MaxRepeats
	if maxRepeats <= 0 {
		maxRepeats = defaultMaxRepeats
	}

	if state.AttemptsByNode[node.ID] >= maxRepeats {
		if edge := g.EdgeByHandle(node.ID, "fallback"); edge != nil {
			return stepResult{next: edge.Target}
		}

		return d.advance(g, node.ID)
	}

	if _, err := d.engine.RecordInputFailure(ctx, state.CallID, node.ID, models.FailureReasonMatched); err != nil {
		return stepResult{err: err}
	}

	// Replay whatever prompt the caller heard last, then hand control back
	// to the node that played it. Runaway repeats are caught by the loop
	// detection in TrackVisit.
	if text, ok := state.Variables[lastPromptTextVar].(string); ok && text != "" {
		resp.Say(text)
	} else if url, ok := state.Variables[lastPromptURLVar].(string); ok && url != "" {
		resp.Play(url)
	}

	if edge := g.DefaultEdge(node.ID); edge != nil {
		return stepResult{next: edge.Target}
	}

	if origin, ok := state.Variables[lastPromptNodeVar].(string); ok && origin != "" && g.Node(origin) != nil {
		return stepResult{next: origin}
	}

	return stepResult{end: true, reason: models.EndReasonCompleted}
}

func (d *Dispatcher) executeQueue(resp *voice.Response, state *models.ExecutionState, payload *models.QueueData) stepResult {
	queue := payload.QueueName
	if queue == "" {
		queue = "default"
	}

	resp.Enqueue(d.substitute(state, queue), payload.WaitMusicURL)

	return stepResult{end: true, reason: models.EndReasonCompleted}
}

func (d *Dispatcher) executeConditional(g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.ConditionalData) stepResult {
	result, err := conditions.Evaluate(*payload, conditions.Input{
		Variables: state.Variables,
		Caller:    state.Caller,
		Now:       time.Now(),
	})
	if err != nil {
		return stepResult{err: fmt.Errorf("conditional %s: %w", node.ID, err)}
	}

	handle := "false"
	if result {
		handle = "true"
	}

	if edge := g.EdgeByHandle(node.ID, handle); edge != nil {
		return stepResult{next: edge.Target}
	}

	return stepResult{err: fmt.Errorf("conditional %s has no %s edge", node.ID, handle)}
}

func (d *Dispatcher) executeSetVariable(ctx context.Context, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.SetVariableData) stepResult {
	if payload.Name == "" {
		return stepResult{err: fmt.Errorf("set_variable %s has no name", node.ID)}
	}

	value := d.substitute(state, payload.Value)
	if err := d.engine.SetVariable(ctx, state.CallID, payload.Name, value); err != nil {
		return stepResult{err: err}
	}

	state.Variables[payload.Name] = value

	return d.advance(g, node.ID)
}

func (d *Dispatcher) executeAPICall(ctx context.Context, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.APICallData) stepResult {
	status, body, err := d.callAPI(ctx, state, payload)
	if err != nil {
		d.logger.WarnContext(ctx, "api call failed",
			"call_id", state.CallID, "node_id", node.ID, "url", payload.URL, "error", err)

		if edge := g.EdgeByHandle(node.ID, "error"); edge != nil {
			return stepResult{next: edge.Target}
		}

		return stepResult{err: fmt.Errorf("api call %s failed with no error edge: %w", node.ID, err)}
	}

	variable := payload.ResponseVariable
	if variable == "" {
		variable = "api_response"
	}

	if err := d.engine.SetVariable(ctx, state.CallID, variable, body); err != nil {
		return stepResult{err: err}
	}

	if err := d.engine.SetVariable(ctx, state.CallID, variable+"_status", status); err != nil {
		return stepResult{err: err}
	}

	state.Variables[variable] = body
	state.Variables[variable+"_status"] = status

	if status >= http.StatusBadRequest {
		if edge := g.EdgeByHandle(node.ID, "error"); edge != nil {
			return stepResult{next: edge.Target}
		}
	}

	if edge := g.EdgeByHandle(node.ID, "success"); edge != nil {
		return stepResult{next: edge.Target}
	}

	return d.advance(g, node.ID)
}

func (d *Dispatcher) callAPI(ctx context.Context, state *models.ExecutionState, payload *models.APICallData) (int, string, error) {
	timeout := payload.TimeoutSec
	if timeout <= 0 {
		timeout = defaultAPITimeoutSec
	}

	if timeout > maxAPITimeoutSec {
		timeout = maxAPITimeoutSec
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	method := strings.ToUpper(payload.Method)
	if method == "" {
		method = http.MethodGet
	}

	url := d.substitute(state, payload.URL)

	var bodyReader io.Reader
	if payload.Body != "" {
		bodyReader = strings.NewReader(d.substitute(state, payload.Body))
	}

	req, err := http.NewRequestWithContext(callCtx, method, url, bodyReader)
	if err != nil {
		return 0, "", err
	}

	for key, value := range payload.Headers {
		req.Header.Set(key, d.substitute(state, value))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, "", err
	}

	return resp.StatusCode, string(body), nil
}

func (d *Dispatcher) executeSms(resp *voice.Response, g *graph.Graph, state *models.ExecutionState, node *graph.CompiledNode, payload *models.SmsData) stepResult {
	to := d.substitute(state, payload.To)
	if to == "" {
		to = state.Caller
	}

	resp.Sms(d.substitute(state, payload.Message), to, payload.From)

	return d.advance(g, node.ID)
}

func (d *Dispatcher) executeAIAssistant(resp *voice.Response, state *models.ExecutionState, payload *models.AIAssistantData) stepResult {
	url := d.substitute(state, payload.AssistantURL)
	if url == "" {
		resp.Say(ApologyText).Hangup()

		return stepResult{end: true, reason: models.EndReasonCompleted}
	}

	if payload.Greeting != "" {
		resp.Say(d.substitute(state, payload.Greeting))
	}

	resp.Redirect(url)

	return stepResult{end: true, reason: models.EndReasonCompleted}
}

func (d *Dispatcher) executeEnd(ctx context.Context, resp *voice.Response, state *models.ExecutionState, payload *models.EndData) stepResult {
	if payload.FarewellText != "" {
		resp.Say(d.substitute(state, payload.FarewellText))
	}

	// Post-call side effects ride along in the final document or as markers
	// in the finalized log; none of them may block or fail termination.
	if payload.SurveySmsMessage != "" && state.Caller != "" {
		resp.Sms(d.substitute(state, payload.SurveySmsMessage), state.Caller, "")
	}

	if payload.ReceiptEmail {
		if err := d.engine.SetVariable(ctx, state.CallID, "receipt_email_requested", true); err != nil {
			d.logger.Warn("failed to record receipt email request",
				"call_id", state.CallID, "error", err)
		}
	}

	if payload.CallbackDelayMin > 0 {
		if err := d.engine.SetVariable(ctx, state.CallID, "callback_delay_min", payload.CallbackDelayMin); err != nil {
			d.logger.Warn("failed to record callback request",
				"call_id", state.CallID, "error", err)
		}
	}

	resp.Hangup()

	return stepResult{end: true, reason: models.EndReasonCompleted}
}

// advance follows the node's default edge; a sink reports no route and the
// turn loop terminates the call cleanly.
func (d *Dispatcher) advance(g *graph.Graph, nodeID string) stepResult {
	if edge := g.DefaultEdge(nodeID); edge != nil {
		return stepResult{next: edge.Target}
	}

	return stepResult{}
}

// playPrompt speaks or plays a prompt and remembers it for the repeat node.
func (d *Dispatcher) playPrompt(ctx context.Context, resp *voice.Response, state *models.ExecutionState, text, audioURL string) {
	if audioURL != "" {
		resp.Play(audioURL)
		d.rememberPrompt(ctx, state, state.CurrentNodeID, "", audioURL)

		return
	}

	if text != "" {
		rendered := d.substitute(state, text)
		resp.Say(rendered)
		d.rememberPrompt(ctx, state, state.CurrentNodeID, rendered, "")
	}
}

func (d *Dispatcher) rememberPrompt(ctx context.Context, state *models.ExecutionState, nodeID, text, audioURL string) {
	for key, value := range map[string]string{
		lastPromptTextVar: text,
		lastPromptURLVar:  audioURL,
		lastPromptNodeVar: nodeID,
	} {
		if err := d.engine.SetVariable(ctx, state.CallID, key, value); err != nil {
			d.logger.WarnContext(ctx, "failed to remember prompt", "call_id", state.CallID, "error", err)

			return
		}

		state.Variables[key] = value
	}
}

// substitute renders {placeholders} against the execution's variables plus
// the call identity.
func (d *Dispatcher) substitute(state *models.ExecutionState, input string) string {
	if input == "" || !strings.Contains(input, "{") {
		return input
	}

	vars := make(map[string]any, len(state.Variables)+3)
	for key, value := range state.Variables {
		vars[key] = value
	}

	vars["caller"] = state.Caller
	vars["callee"] = state.Callee
	vars["call_id"] = state.CallID

	return template.Substitute(input, vars)
}

func (d *Dispatcher) gatherAction(workflowID, nodeID string) string {
	return fmt.Sprintf("%s/voice/%s/gather/%s", d.baseURL, workflowID, nodeID)
}

func (d *Dispatcher) recordingAction(workflowID, nodeID string) string {
	return fmt.Sprintf("%s/voice/%s/recording/%s", d.baseURL, workflowID, nodeID)
}
