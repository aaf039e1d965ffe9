package rtagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/codewandler/rtagent-go/events"
	"github.com/codewandler/rtagent-go/tool"
)

const approvalRejectedOutput = "Tool execution was not approved."

type approvalDecision int

const (
	approvalUndecided approvalDecision = iota
	approvalApproved
	approvalRejected
)

type pendingToolCall struct {
	event FunctionCallEvent
	agent *RealtimeAgent
	tool  tool.Tool
}

// Session is the top-level orchestrator: it owns the active agent, the
// reconciled conversation history and the approval ledger, and dispatches
// tool calls, handoffs and guardrail evaluation over one transport.
//
// All state mutation happens on the single dispatch goroutine reading the
// transport's event channel; the only true concurrency is guardrail fan-out
// and the caller-invoked Approve/Reject path, both of which go through the
// session mutex.
type Session struct {
	cfg       *sessionConfig
	transport Transport
	logger    *slog.Logger

	emitMu sync.Mutex
	out    chan SessionEvent
	closed bool

	mu                  sync.Mutex
	agent               *RealtimeAgent
	history             []RealtimeItem
	itemTranscripts     map[string]string
	guardrailRuns       map[string]int
	interruptedByID     map[string]struct{}
	approvals           map[string]approvalDecision
	pendingCalls        map[string]pendingToolCall
	pendingMCPApprovals map[string]*MCPApprovalRequestItem
	mcpListings         map[string][]tool.Info
	exposedMCP          map[string]struct{}
	usage               events.Usage
}

func NewSession(agent *RealtimeAgent, opts ...SessionOption) *Session {
	cfg := newSessionConfig(opts...)
	return &Session{
		cfg:                 cfg,
		transport:           cfg.transport,
		logger:              cfg.logger,
		out:                 make(chan SessionEvent, 256),
		agent:               agent,
		itemTranscripts:     make(map[string]string),
		guardrailRuns:       make(map[string]int),
		interruptedByID:     make(map[string]struct{}),
		approvals:           make(map[string]approvalDecision),
		pendingCalls:        make(map[string]pendingToolCall),
		pendingMCPApprovals: make(map[string]*MCPApprovalRequestItem),
		mcpListings:         make(map[string][]tool.Info),
		exposedMCP:          make(map[string]struct{}),
	}
}

// Connect establishes the transport connection with the active agent's
// configuration and starts event dispatch.
func (s *Session) Connect(ctx context.Context, opts ConnectOptions) error {
	settings := s.settingsForAgent(ctx, s.currentAgent())
	if s.cfg.settings != nil {
		overlaySettings(&settings, *s.cfg.settings)
	}
	if s.cfg.tracing != nil {
		settings.Tracing = s.cfg.tracing
	}
	if opts.InitialConfig != nil {
		overlaySettings(&settings, *opts.InitialConfig)
	}
	opts.InitialConfig = &settings

	if err := s.transport.Connect(ctx, opts); err != nil {
		return err
	}

	go s.dispatchLoop()
	s.emit(HistoryUpdatedEvent{History: s.History()})
	return nil
}

// Events returns the session's event stream. The channel closes when the
// session is closed.
func (s *Session) Events() <-chan SessionEvent { return s.out }

// History returns a deep-copied snapshot of the reconciled history.
func (s *Session) History() []RealtimeItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CloneHistory(s.history)
}

// Usage returns the token counters accumulated across completed turns.
func (s *Session) Usage() events.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func (s *Session) CurrentAgent() *RealtimeAgent { return s.currentAgent() }

func (s *Session) Transport() Transport { return s.transport }

// SendMessage creates a user message and triggers a new turn.
func (s *Session) SendMessage(text string) error {
	return s.transport.SendMessage(text, nil)
}

// SendAudio appends PCM audio to the input buffer; commit signals
// end-of-utterance.
func (s *Session) SendAudio(audio []byte, commit bool) error {
	return s.transport.SendAudio(audio, commit)
}

// Interrupt truncates the in-progress turn, e.g. for barge-in.
func (s *Session) Interrupt() error {
	return s.transport.Interrupt()
}

func (s *Session) Mute(muted bool) error { return s.transport.Mute(muted) }

func (s *Session) Muted() *bool { return s.transport.Muted() }

// UpdateHistory replaces the session history with a locally edited copy and
// reconciles the remote conversation against it.
func (s *Session) UpdateHistory(newHistory []RealtimeItem) {
	s.mu.Lock()
	oldHistory := s.history
	s.history = CloneHistory(newHistory)
	s.mu.Unlock()
	s.transport.ResetHistory(oldHistory, newHistory)
	s.emit(HistoryUpdatedEvent{History: s.History()})
}

// Close tears down the transport. Outstanding tool executions are not
// awaited; their results are discarded.
func (s *Session) Close() error {
	s.mu.Lock()
	clear(s.pendingCalls)
	clear(s.pendingMCPApprovals)
	s.mu.Unlock()
	return s.transport.Close()
}

// Approve resolves a pending tool approval in favor of execution and
// replays the dispatch. For MCP approval requests the decision is answered
// on the wire instead. Unknown ids are a caller error.
func (s *Session) Approve(ctx context.Context, callID string) error {
	return s.decideApproval(ctx, callID, approvalApproved)
}

// Reject resolves a pending tool approval negatively; the tool body is
// never invoked and a fixed rejection output resumes the turn.
func (s *Session) Reject(ctx context.Context, callID string) error {
	return s.decideApproval(ctx, callID, approvalRejected)
}

func (s *Session) decideApproval(ctx context.Context, callID string, decision approvalDecision) error {
	s.mu.Lock()
	if item, ok := s.pendingMCPApprovals[callID]; ok {
		delete(s.pendingMCPApprovals, callID)
		s.mu.Unlock()
		return s.sendMCPApprovalResponse(item.ID, decision == approvalApproved)
	}
	pending, ok := s.pendingCalls[callID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no pending approval for call %q", callID)
	}
	delete(s.pendingCalls, callID)
	s.approvals[callID] = decision
	s.mu.Unlock()

	s.dispatchTool(ctx, pending.event, pending.agent, pending.tool)
	return nil
}

func (s *Session) sendMCPApprovalResponse(requestID string, approve bool) error {
	raw, err := json.Marshal(map[string]any{
		"type":                "mcp_approval_response",
		"approval_request_id": requestID,
		"approve":             approve,
	})
	if err != nil {
		return err
	}
	return s.transport.SendEvent(events.NewConversationItemCreateEvent(raw))
}

// --- dispatch ---

func (s *Session) dispatchLoop() {
	defer s.closeEvents()
	for event := range s.transport.Events() {
		s.safeDispatch(event)
	}
}

// safeDispatch keeps one bad event from taking down the whole session: any
// panic in history reconciliation or handler code re-surfaces as a session
// error event.
func (s *Session) safeDispatch(event TransportEvent) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.emit(SessionErrorEvent{Err: fmt.Errorf("event dispatch panic: %v", recovered)})
		}
	}()
	s.dispatch(event)
}

func (s *Session) dispatch(event TransportEvent) {
	s.emit(RawTransportEvent{Event: event})

	switch e := event.(type) {
	case TransportErrorEvent:
		s.emit(SessionErrorEvent{Err: e.Err})

	case TurnStartedEvent:
		s.emit(AgentStartEvent{Agent: s.currentAgent(), ResponseID: e.ResponseID})

	case TurnDoneEvent:
		s.handleTurnDone(e)

	case UsageUpdateEvent:
		s.mu.Lock()
		s.usage.Add(e.Usage)
		s.mu.Unlock()

	case AudioFrameEvent:
		s.emit(AudioEvent{Data: e.Data, ItemID: e.ItemID, ResponseID: e.ResponseID})

	case AudioDoneEvent:
		s.emit(AudioEndEvent{ItemID: e.ItemID})

	case AudioInterruptedEvent:
		s.emit(InterruptedEvent{ItemID: e.ItemID})

	case AudioTranscriptDeltaEvent:
		s.handleTranscriptDelta(e)

	case ItemUpdateEvent:
		s.handleItemUpdate(e.Item)

	case ItemDeletedEvent:
		s.mu.Lock()
		s.history = RemoveHistoryItem(s.history, e.ItemID)
		s.mu.Unlock()
		s.emit(HistoryUpdatedEvent{History: s.History()})

	case FunctionCallEvent:
		s.handleFunctionCall(context.Background(), e)

	case InputTranscriptCompletedEvent:
		s.handleInputTranscript(e)

	case InputAudioTimeoutEvent:
		s.emit(InputTimeoutEvent{ItemID: e.ItemID})

	case MCPListToolsEvent:
		s.mu.Lock()
		s.mcpListings[e.ServerLabel] = e.Tools
		s.mu.Unlock()
		s.recomputeMCPTools()
	}
}

func (s *Session) handleTurnDone(e TurnDoneEvent) {
	// Final guardrail pass over the complete output, regardless of
	// debounce state.
	if text := assistantOutputText(e.Output); text != "" {
		s.runGuardrails(context.Background(), text, e.ResponseID)
	}
	s.mu.Lock()
	s.itemTranscripts = make(map[string]string)
	clear(s.guardrailRuns)
	s.mu.Unlock()
	s.emit(AgentEndEvent{Agent: s.currentAgent(), ResponseID: e.ResponseID, Usage: e.Usage})
}

func assistantOutputText(output []RealtimeItem) string {
	var b strings.Builder
	for _, item := range output {
		message, ok := item.(*MessageItem)
		if !ok || message.Role != "assistant" {
			continue
		}
		for _, part := range message.Content {
			if part.Text != "" {
				b.WriteString(part.Text)
			} else if part.Transcript != "" {
				b.WriteString(part.Transcript)
			}
		}
	}
	return b.String()
}

func (s *Session) handleItemUpdate(item RealtimeItem) {
	if approval, ok := item.(*MCPApprovalRequestItem); ok {
		s.mu.Lock()
		s.pendingMCPApprovals[approval.ID] = approval
		s.mu.Unlock()
		args, _ := json.Marshal(approval.Arguments)
		s.applyItem(item)
		s.emit(ToolApprovalRequestedEvent{
			Agent: s.currentAgent(),
			Request: ApprovalRequest{
				CallID:      approval.ID,
				Name:        approval.Name,
				Arguments:   string(args),
				MCP:         true,
				ServerLabel: approval.ServerLabel,
			},
		})
		return
	}
	s.applyItem(item)
}

func (s *Session) applyItem(item RealtimeItem) {
	s.mu.Lock()
	existed := false
	for _, existing := range s.history {
		if existing.ItemID() == item.ItemID() {
			existed = true
			break
		}
	}
	s.history = ApplyHistoryUpdate(s.history, item, s.cfg.keepAudioInHistory)
	s.mu.Unlock()
	if existed {
		s.emit(HistoryUpdatedEvent{History: s.History()})
	} else {
		s.emit(HistoryAddedEvent{Item: item})
	}
}

func (s *Session) handleInputTranscript(e InputTranscriptCompletedEvent) {
	s.mu.Lock()
	added := s.applyInputTranscriptLocked(e.ItemID, e.Transcript)
	s.mu.Unlock()
	if added {
		s.emit(HistoryAddedEvent{Item: s.findItem(e.ItemID)})
	} else {
		s.emit(HistoryUpdatedEvent{History: s.History()})
	}
}

func (s *Session) applyInputTranscriptLocked(itemID, transcript string) (added bool) {
	for i, item := range s.history {
		message, ok := item.(*MessageItem)
		if !ok || message.ID != itemID || message.Role != "user" {
			continue
		}
		update := *message
		update.Status = StatusCompleted
		update.Content = make([]ContentPart, len(message.Content))
		for j, part := range message.Content {
			if part.Type == "input_audio" {
				part.Transcript = transcript
			}
			update.Content[j] = part
		}
		s.history[i] = &update
		return false
	}
	s.history = append(s.history, &MessageItem{
		ID:     itemID,
		Type:   "message",
		Role:   "user",
		Status: StatusCompleted,
		Content: []ContentPart{
			{Type: "input_text", Text: transcript},
		},
	})
	return true
}

func (s *Session) findItem(itemID string) RealtimeItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.history {
		if item.ItemID() == itemID {
			return CloneItem(item)
		}
	}
	return nil
}

// handleTranscriptDelta accumulates assistant transcript per item, mirrors
// it into the history, and decides whether a debounced guardrail run is
// due.
func (s *Session) handleTranscriptDelta(e AudioTranscriptDeltaEvent) {
	s.mu.Lock()
	transcript := s.itemTranscripts[e.ItemID] + e.Delta
	s.itemTranscripts[e.ItemID] = transcript
	s.mirrorAssistantTranscriptLocked(e.ItemID, transcript)
	shouldRun := false
	if s.cfg.debounceChars > 0 {
		nextThreshold := (s.guardrailRuns[e.ItemID] + 1) * s.cfg.debounceChars
		if len(transcript) >= nextThreshold {
			s.guardrailRuns[e.ItemID]++
			shouldRun = true
		}
	}
	s.mu.Unlock()

	s.emit(TranscriptDeltaEvent{ItemID: e.ItemID, ResponseID: e.ResponseID, Delta: e.Delta})
	if shouldRun {
		go s.runGuardrails(context.Background(), transcript, e.ResponseID)
	}
}

func (s *Session) mirrorAssistantTranscriptLocked(itemID, transcript string) {
	for i, item := range s.history {
		message, ok := item.(*MessageItem)
		if !ok || message.ID != itemID || message.Role != "assistant" {
			continue
		}
		update := *message
		update.Content = make([]ContentPart, len(message.Content))
		hasAudioPart := false
		for j, part := range message.Content {
			if part.Type == "audio" || part.Type == "output_audio" {
				part.Transcript = transcript
				hasAudioPart = true
			}
			update.Content[j] = part
		}
		if !hasAudioPart {
			update.Content = append(update.Content, ContentPart{Type: "audio", Transcript: transcript})
		}
		s.history[i] = &update
		return
	}
	s.history = append(s.history, &MessageItem{
		ID:     itemID,
		Type:   "message",
		Role:   "assistant",
		Status: StatusInProgress,
		Content: []ContentPart{
			{Type: "audio", Transcript: transcript},
		},
	})
}

// --- guardrails ---

func (s *Session) runGuardrails(ctx context.Context, text, responseID string) {
	guardrails := s.currentAgent().OutputGuardrails
	if len(guardrails) == 0 {
		return
	}
	if s.isInterrupted(responseID) {
		return
	}

	type outcome struct {
		guardrail Guardrail
		verdict   GuardrailVerdict
		err       error
	}
	outcomes := make([]outcome, len(guardrails))
	var wg sync.WaitGroup
	for i, g := range guardrails {
		wg.Add(1)
		go func(i int, g Guardrail) {
			defer wg.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					outcomes[i].err = fmt.Errorf("guardrail %s panic: %v", g.Name, recovered)
				}
			}()
			verdict, err := g.Check(ctx, text)
			outcomes[i] = outcome{guardrail: g, verdict: verdict, err: err}
		}(i, g)
	}
	wg.Wait()

	var tripped []GuardrailResult
	for _, o := range outcomes {
		if o.err != nil {
			s.logger.Warn("guardrail check failed",
				slog.String("guardrail", o.guardrail.Name), slog.Any("err", o.err))
			continue
		}
		if o.verdict.Tripwire {
			tripped = append(tripped, GuardrailResult{
				Guardrail:  o.guardrail,
				Verdict:    o.verdict,
				PolicyHint: o.guardrail.policyHint(),
			})
		}
	}
	if len(tripped) == 0 {
		return
	}

	// First trip wins; concurrent debounced and final runs for the same
	// response must not double-trip.
	if !s.markInterrupted(responseID) {
		return
	}

	s.emit(GuardrailTrippedEvent{Results: tripped, Message: text, ResponseID: responseID})
	if err := s.transport.Interrupt(); err != nil {
		s.logger.Warn("guardrail interrupt failed", slog.Any("err", err))
	}
	if err := s.transport.SendMessage(guardrailFeedbackMessage(tripped), nil); err != nil {
		s.logger.Warn("guardrail feedback message failed", slog.Any("err", err))
	}
}

func guardrailFeedbackMessage(tripped []GuardrailResult) string {
	hints := make([]string, 0, len(tripped))
	for _, result := range tripped {
		hints = append(hints, result.PolicyHint)
	}
	return fmt.Sprintf(
		"Your previous response was interrupted because it violated policy: %s. "+
			"Briefly apologize to the user without repeating what was blocked, then move the conversation in a safe direction.",
		strings.Join(hints, ", "))
}

func (s *Session) markInterrupted(responseID string) bool {
	if responseID == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.interruptedByID[responseID]; exists {
		return false
	}
	s.interruptedByID[responseID] = struct{}{}
	return true
}

func (s *Session) isInterrupted(responseID string) bool {
	if responseID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.interruptedByID[responseID]
	return exists
}

// --- tool & handoff dispatch ---

func (s *Session) handleFunctionCall(ctx context.Context, call FunctionCallEvent) {
	agent := s.currentAgent()
	if target, ok := agent.handoffByToolName(call.Name); ok {
		s.performHandoff(ctx, call, agent, target)
		return
	}
	if t, ok := agent.toolByName(call.Name); ok {
		s.dispatchTool(ctx, call, agent, t)
		return
	}
	s.emit(SessionErrorEvent{Err: &ModelBehaviorError{
		Message: fmt.Sprintf("model called tool %q which is neither a tool nor a handoff of agent %q", call.Name, agent.Name),
	}})
}

func (s *Session) dispatchTool(ctx context.Context, call FunctionCallEvent, agent *RealtimeAgent, t tool.Tool) {
	if t.NeedsApproval {
		switch s.approvalStatus(call.CallID) {
		case approvalRejected:
			if err := s.sendToolOutput(call.CallID, approvalRejectedOutput, true); err != nil {
				s.emit(SessionErrorEvent{Err: err})
				return
			}
			s.emit(ToolEndEvent{Agent: agent, Tool: t, Arguments: call.Arguments, Output: approvalRejectedOutput})
			return
		case approvalUndecided:
			s.mu.Lock()
			s.pendingCalls[call.CallID] = pendingToolCall{event: call, agent: agent, tool: t}
			s.mu.Unlock()
			s.emit(ToolApprovalRequestedEvent{
				Agent: agent,
				Request: ApprovalRequest{
					CallID:    call.CallID,
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
			// The turn resumes only once the caller decides.
			return
		}
	}
	s.runTool(ctx, call, agent, t)
}

func (s *Session) approvalStatus(callID string) approvalDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvals[callID]
}

func (s *Session) runTool(ctx context.Context, call FunctionCallEvent, agent *RealtimeAgent, t tool.Tool) {
	s.emit(ToolStartEvent{Agent: agent, Tool: t, Arguments: call.Arguments})

	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			args = map[string]any{}
		}
	}

	var output string
	result, err := t.Invoke(ctx, args)
	switch {
	case err != nil:
		d, _ := json.Marshal(map[string]any{"error": err.Error()})
		output = string(d)
	case result == nil:
		d, _ := json.Marshal(map[string]any{"success": true})
		output = string(d)
	default:
		if str, ok := result.(string); ok {
			output = str
		} else {
			d, merr := json.Marshal(result)
			if merr != nil {
				d, _ = json.Marshal(map[string]any{"error": merr.Error()})
			}
			output = string(d)
		}
	}

	// Background tools attach output without prompting a new response.
	if err := s.sendToolOutput(call.CallID, output, !t.Background); err != nil {
		s.emit(SessionErrorEvent{Err: err})
		return
	}
	s.emit(ToolEndEvent{Agent: agent, Tool: t, Arguments: call.Arguments, Output: output})
}

func (s *Session) performHandoff(ctx context.Context, call FunctionCallEvent, from, to *RealtimeAgent) {
	s.mu.Lock()
	s.agent = to
	s.mu.Unlock()

	s.emit(AgentHandoffEvent{From: from, To: to})

	// Push the new agent's config; the merge preserves previously set
	// fields like audio formats.
	settings := s.settingsForAgent(ctx, to)
	if err := s.transport.UpdateSessionConfig(settings); err != nil {
		s.emit(SessionErrorEvent{Err: fmt.Errorf("handoff config update: %w", err)})
		return
	}

	transfer, _ := json.Marshal(map[string]string{"assistant": to.Name})
	if err := s.sendToolOutput(call.CallID, string(transfer), true); err != nil {
		s.emit(SessionErrorEvent{Err: fmt.Errorf("handoff acknowledgement: %w", err)})
		return
	}

	s.recomputeMCPTools()
}

func (s *Session) sendToolOutput(callID, output string, startResponse bool) error {
	raw, err := json.Marshal(map[string]any{
		"type":    "function_call_output",
		"call_id": callID,
		"output":  output,
	})
	if err != nil {
		return err
	}
	if err := s.transport.SendEvent(events.NewConversationItemCreateEvent(raw)); err != nil {
		return err
	}
	if startResponse {
		return s.transport.SendEvent(events.NewResponseCreateEvent())
	}
	return nil
}

// --- MCP availability ---

// recomputeMCPTools re-filters cached server listings through the active
// agent's MCP configuration and emits a change event only when the exposed
// name set actually differs.
func (s *Session) recomputeMCPTools() {
	agent := s.currentAgent()

	s.mu.Lock()
	names := make(map[string]struct{})
	var infos []tool.Info
	for _, server := range agent.MCPServers {
		for _, info := range s.mcpListings[server.ServerLabel] {
			if !server.Allows(info.Name) {
				continue
			}
			if _, dup := names[info.Name]; dup {
				continue
			}
			names[info.Name] = struct{}{}
			infos = append(infos, info)
		}
	}
	changed := !nameSetsEqual(names, s.exposedMCP)
	if changed {
		s.exposedMCP = names
	}
	s.mu.Unlock()

	if changed {
		s.emit(MCPToolsChangedEvent{Tools: infos})
	}
}

func nameSetsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			return false
		}
	}
	return true
}

// --- plumbing ---

func (s *Session) currentAgent() *RealtimeAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

func (s *Session) settingsForAgent(ctx context.Context, agent *RealtimeAgent) SessionSettings {
	instructions, err := agent.SystemInstructions(ctx, s.History())
	if err != nil {
		s.logger.Warn("resolving agent instructions failed", slog.Any("err", err))
		instructions = agent.Instructions
	}
	settings := SessionSettings{
		Instructions: instructions,
		Tools:        agent.toolDefinitions(),
		Voice:        agent.Voice,
	}
	if len(settings.Tools) > 0 {
		settings.ToolChoice = "auto"
	}
	return settings
}

func overlaySettings(dst *SessionSettings, src SessionSettings) {
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Instructions != "" {
		dst.Instructions = src.Instructions
	}
	if len(src.Modalities) > 0 {
		dst.Modalities = src.Modalities
	}
	if src.Voice != "" {
		dst.Voice = src.Voice
	}
	if src.Speed != 0 {
		dst.Speed = src.Speed
	}
	if src.InputAudioFormat != "" {
		dst.InputAudioFormat = src.InputAudioFormat
	}
	if src.OutputAudioFormat != "" {
		dst.OutputAudioFormat = src.OutputAudioFormat
	}
	if src.InputAudioTranscription != nil {
		dst.InputAudioTranscription = src.InputAudioTranscription
	}
	if src.TurnDetection != nil {
		dst.TurnDetection = src.TurnDetection
	}
	if src.ToolChoice != "" {
		dst.ToolChoice = src.ToolChoice
	}
	if src.Tools != nil {
		dst.Tools = src.Tools
	}
	if src.Tracing != nil {
		dst.Tracing = src.Tracing
	}
}

func (s *Session) emit(event SessionEvent) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		return
	}
	s.out <- event
}

func (s *Session) closeEvents() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}
