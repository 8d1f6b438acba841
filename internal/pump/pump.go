// Package pump implements the filtering message pump between the MCP
// client stream and the upstream server process.
//
// Two loops run concurrently: the inbound loop reads caller frames,
// evaluates tools/call requests against the policy, and either forwards
// them to the upstream's stdin or answers locally; the relay loop copies
// upstream stdout frames back to the caller verbatim. The only shared
// state is the immutable policy, the caller-output mutex, and the set of
// pending tools/list request IDs.
package pump

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/mcp_filter/internal/jsonrpc"
	"github.com/triage-ai/palisade/services/mcp_filter/internal/policy"
	"github.com/triage-ai/palisade/services/mcp_filter/internal/storage"
)

const (
	methodToolsCall = "tools/call"
	methodToolsList = "tools/list"

	// maxFrameSize bounds a single JSON-RPC line. Large enough for any
	// realistic tools/list response or file-content result.
	maxFrameSize = 4 * 1024 * 1024
)

// Config wires a Pump to its streams and collaborators.
type Config struct {
	Policy *policy.Policy
	Writer storage.EventWriter
	Logger *zap.Logger

	CallerIn    io.Reader
	CallerOut   io.Writer
	UpstreamIn  io.WriteCloser
	UpstreamOut io.Reader
}

// Pump is one filtering session over a caller stream and an upstream
// process's stdio.
type Pump struct {
	policy    *policy.Policy
	writer    storage.EventWriter
	logger    *zap.Logger
	sessionID string

	callerIn    io.Reader
	callerOut   io.Writer
	upstreamIn  io.WriteCloser
	upstreamOut io.Reader

	outMu sync.Mutex // serializes caller writes from both loops

	listMu  sync.Mutex
	listIDs map[string]struct{} // pending tools/list request IDs
}

// New creates a Pump. The policy must already be sealed; the pump never
// mutates it.
func New(cfg Config) *Pump {
	return &Pump{
		policy:      cfg.Policy,
		writer:      cfg.Writer,
		logger:      cfg.Logger,
		sessionID:   uuid.New().String(),
		callerIn:    cfg.CallerIn,
		callerOut:   cfg.CallerOut,
		upstreamIn:  cfg.UpstreamIn,
		upstreamOut: cfg.UpstreamOut,
		listIDs:     make(map[string]struct{}),
	}
}

// Run drives both stream loops until the caller stream ends or a pipe
// breaks. The upstream's stdin is closed on return so the subprocess
// sees EOF; the relay loop is then drained before Run returns.
//
// An upstream that dies mid-session does not stop the inbound loop:
// synthetic calls and rejections stay answerable, and the session only
// becomes terminal when a forward actually hits the broken pipe.
func (p *Pump) Run() error {
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		p.relayLoop()
	}()

	err := p.inboundLoop()

	if cerr := p.upstreamIn.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close upstream stdin: %w", cerr)
	}
	<-relayDone
	return err
}

// inboundLoop reads one newline-delimited frame at a time from the
// caller and dispatches it. Returns on EOF or a terminal write error.
func (p *Pump) inboundLoop() error {
	scanner := bufio.NewScanner(p.callerIn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := p.handleFrame(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("caller stream: %w", err)
	}
	p.logger.Debug("caller stream closed")
	return nil
}

// handleFrame classifies one inbound frame. Only tools/call requests are
// subject to policy; everything else is forwarded byte-verbatim.
func (p *Pump) handleFrame(line []byte) error {
	msg, err := jsonrpc.Parse(line)
	if err != nil {
		// Malformed frame: answer with a correlated parse error when the
		// id is recoverable, otherwise drop it and keep the session alive.
		if id := jsonrpc.ExtractID(line); id != nil {
			p.logger.Warn("malformed frame, answering parse error", zap.Error(err))
			return p.respondLocal(jsonrpc.NewError(id, jsonrpc.CodeParseError, "parse error: not a valid JSON-RPC 2.0 frame"))
		}
		p.logger.Warn("dropping malformed frame without id", zap.Error(err))
		return nil
	}

	if msg.Method == methodToolsCall {
		return p.interceptToolCall(line, msg)
	}

	// Track tools/list request IDs so the relay loop can inject the
	// synthetic tool descriptor into the matching response.
	if msg.Method == methodToolsList && msg.Type() == jsonrpc.TypeRequest {
		p.trackListID(msg.ID)
	}

	return p.forward(line)
}

// interceptToolCall applies the decision order: synthetic tool first,
// then the policy (blocklist, allowlist, search exemption, access check).
func (p *Pump) interceptToolCall(line []byte, msg *jsonrpc.Message) error {
	start := time.Now()
	id := msg.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	if issue := validateCallParams(msg.Params); issue != "" {
		p.logger.Warn("tools/call with invalid params envelope",
			zap.String("issue", issue),
		)
		return p.respondLocal(jsonrpc.NewError(id, jsonrpc.CodeInvalidParams, "invalid tools/call params: "+issue))
	}

	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return p.respondLocal(jsonrpc.NewError(id, jsonrpc.CodeInvalidParams, "invalid tools/call params: "+err.Error()))
	}

	// The synthetic tool is answered before any allowlist check and
	// without touching the upstream process.
	if params.Name == syntheticToolName {
		resp, err := p.syntheticResult(id)
		if err != nil {
			return fmt.Errorf("synthetic result: %w", err)
		}
		p.audit(policy.ToolCall{Name: params.Name}, policy.SyntheticHandled, "", start)
		return p.respondLocal(resp)
	}

	owner, repo := extractOwnerRepo(params.Arguments)
	if owner == "" && repo == "" {
		p.logger.Debug("tools/call without owner/repo context",
			zap.String("tool_name", params.Name),
		)
	}
	call := policy.ToolCall{Name: params.Name, Owner: owner, Repo: repo}

	decision := p.policy.Evaluate(call)
	reason := ""
	if decision != policy.Forward {
		reason = rejectionMessage(decision, call)
	}
	p.audit(call, decision, reason, start)

	if decision == policy.Forward {
		return p.forward(line)
	}

	p.logger.Info("tool call rejected",
		zap.String("tool_name", call.Name),
		zap.String("owner", call.Owner),
		zap.String("repo", call.Repo),
		zap.String("decision", decision.String()),
	)
	return p.respondLocal(jsonrpc.NewError(id, jsonrpc.CodeInvalidRequest, reason))
}

// relayLoop copies upstream frames to the caller. Responses and
// notifications are never policy-evaluated; the only rewrite is the
// synthetic tool injection into tracked tools/list responses.
func (p *Pump) relayLoop() {
	scanner := bufio.NewScanner(p.upstreamOut)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		out := p.injectSyntheticTool(line)
		if err := p.writeCaller(out); err != nil {
			p.logger.Warn("caller write failed, stopping relay", zap.Error(err))
			return
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("upstream stream error", zap.Error(err))
		return
	}
	p.logger.Debug("upstream stream closed")
}

// forward writes the original frame verbatim to the upstream's stdin.
func (p *Pump) forward(line []byte) error {
	if _, err := p.upstreamIn.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("forward to upstream: %w", err)
	}
	return nil
}

// respondLocal encodes a locally synthesized frame and writes it to the
// caller, interleaved safely with the relay loop.
func (p *Pump) respondLocal(msg *jsonrpc.Message) error {
	data, err := jsonrpc.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode local response: %w", err)
	}
	return p.writeCaller(data)
}

func (p *Pump) writeCaller(line []byte) error {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if _, err := p.callerOut.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write to caller: %w", err)
	}
	return nil
}

func (p *Pump) trackListID(id json.RawMessage) {
	if len(id) == 0 || string(id) == "null" {
		return
	}
	p.listMu.Lock()
	p.listIDs[string(id)] = struct{}{}
	p.listMu.Unlock()
}

func (p *Pump) takeListID(id json.RawMessage) bool {
	if len(id) == 0 {
		return false
	}
	p.listMu.Lock()
	defer p.listMu.Unlock()
	if _, ok := p.listIDs[string(id)]; !ok {
		return false
	}
	delete(p.listIDs, string(id))
	return true
}

// audit emits one decision event per evaluated tools/call. Write never
// blocks the stream loops.
func (p *Pump) audit(call policy.ToolCall, d policy.Decision, reason string, start time.Time) {
	p.writer.Write(&storage.DecisionEvent{
		RequestID: uuid.New().String(),
		SessionID: p.sessionID,
		Timestamp: time.Now().UTC(),
		ToolName:  call.Name,
		Owner:     call.Owner,
		Repo:      call.Repo,
		Decision:  d.String(),
		Reason:    reason,
		Mode:      string(p.policy.Mode()),
		LatencyMs: float32(float64(time.Since(start)) / float64(time.Millisecond)),
	})
}

// extractOwnerRepo pulls the only two argument fields the filter
// inspects. Non-string values are treated as absent.
func extractOwnerRepo(raw json.RawMessage) (owner, repo string) {
	if len(raw) == 0 {
		return "", ""
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", ""
	}
	if s, ok := args["owner"].(string); ok {
		owner = s
	}
	if s, ok := args["repo"].(string); ok {
		repo = s
	}
	return owner, repo
}

// rejectionMessage maps a reject decision to its wire message.
func rejectionMessage(d policy.Decision, call policy.ToolCall) string {
	switch d {
	case policy.RejectToolBlocked:
		return fmt.Sprintf("Tool '%s' is permanently disabled", call.Name)
	case policy.RejectToolNotAllowed:
		return fmt.Sprintf("Tool '%s' is not permitted", call.Name)
	case policy.RejectOwnerRequired:
		return "Access denied: 'repo' was supplied without 'owner'"
	case policy.RejectAccessDenied:
		target := call.Owner
		if call.Repo != "" {
			target = call.Owner + "/" + call.Repo
		}
		return fmt.Sprintf("Access denied: '%s' is not in ALLOWED_ORGS or ALLOWED_REPOS", target)
	default:
		return "Access denied"
	}
}
