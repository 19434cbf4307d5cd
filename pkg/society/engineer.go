// Package society implements the controllers that coordinate sessions into
// larger units of work: the engineer/critic iteration loop and the planning
// round.
package society

import (
	"context"
	"fmt"
	"strings"

	"clockwork/pkg/chat"
	"clockwork/pkg/logx"
	"clockwork/pkg/prompt"
	"clockwork/pkg/session"
)

// Default bounds for the iteration loop.
const (
	// DefaultMaxRevisions caps critic-requested revision rounds.
	DefaultMaxRevisions = 3
	// DefaultNumLastMessages caps how many trailing transcript messages
	// are carried between rounds.
	DefaultNumLastMessages = 25
	// MaxNumLastMessages is the hard ceiling on the carry-over window.
	MaxNumLastMessages = 50
)

// State is the terminal state of an iteration run.
type State string

const (
	// StateApproved means the critic accepted the implementation.
	StateApproved State = "APPROVED"
	// StateAborted means the revision cap was hit. The run still yields a
	// best-effort artifact; callers never special-case this.
	StateAborted State = "ABORTED"
)

// Artifact is the consolidated output of an iteration run.
type Artifact struct {
	// Message is the final consolidated document.
	Message chat.Message
	// State says whether the critic approved or the cap was hit.
	State State
	// Revisions counts critic-requested revision rounds that ran.
	Revisions int
	// History is every retained implementer and critic message across all
	// rounds, in order.
	History []chat.Message
}

// ToolUsage exposes the critic registry's invocation counters. The
// controller resets them before each review round and refuses to accept an
// approval given without a single tool call.
type ToolUsage interface {
	ResetCounts()
	TotalInvocations() int
}

// EngineerConfig wires an engineer/critic iteration controller.
type EngineerConfig struct {
	Name string

	// Engineer is the implementer session (implementer role + code runner).
	Engineer *session.Session
	// Critic is the review session (critic role alone).
	Critic *session.Session

	// ApproveToken and ReviseToken classify critic verdicts.
	ApproveToken string
	ReviseToken  string
	// CriticTerminateToken and EngineerTerminateToken are stripped from
	// retained messages so they cannot re-trigger termination downstream.
	CriticTerminateToken   string
	EngineerTerminateToken string

	// MaxRevisions caps revision rounds; zero selects DefaultMaxRevisions.
	MaxRevisions int
	// NumLastMessages bounds the carry-over window; zero selects
	// DefaultNumLastMessages, values above MaxNumLastMessages are clamped.
	NumLastMessages int
	// MaxMessagesToReturn bounds the fallback consolidated report.
	MaxMessagesToReturn int

	// OutputDir parameterizes the directory instruction blocks.
	OutputDir string

	// CriticTools, when set, tracks the critic's tool calls. An approval
	// issued without any tool invocation is sent back for one grounded
	// re-review before it can be accepted.
	CriticTools ToolUsage

	// Consolidator, when set, produces the final artifact from the original
	// task plus the full retained history. OriginalTask is required with it.
	Consolidator chat.Role
	OriginalTask string
}

// EngineerSociety runs the implementer/critic loop until approval or the
// revision cap.
type EngineerSociety struct {
	cfg    EngineerConfig
	logger *logx.Logger
}

// NewEngineerSociety validates cfg and creates the controller.
func NewEngineerSociety(cfg EngineerConfig) (*EngineerSociety, error) {
	if cfg.Engineer == nil || cfg.Critic == nil {
		return nil, fmt.Errorf("engineer and critic sessions are required")
	}
	if cfg.ApproveToken == "" || cfg.ReviseToken == "" {
		return nil, fmt.Errorf("approve and revise tokens are required")
	}
	if cfg.Consolidator != nil && cfg.OriginalTask == "" {
		return nil, fmt.Errorf("consolidator requires the original task text")
	}
	if cfg.MaxRevisions <= 0 {
		cfg.MaxRevisions = DefaultMaxRevisions
	}
	if cfg.NumLastMessages <= 0 {
		cfg.NumLastMessages = DefaultNumLastMessages
	}
	if cfg.NumLastMessages > MaxNumLastMessages {
		cfg.NumLastMessages = MaxNumLastMessages
	}
	if cfg.MaxMessagesToReturn <= 0 {
		cfg.MaxMessagesToReturn = cfg.NumLastMessages
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	name := cfg.Name
	if name == "" {
		name = "engineer_society"
	}
	cfg.Name = name
	return &EngineerSociety{cfg: cfg, logger: logx.NewLogger(name)}, nil
}

// Run drives the loop on task and always returns a non-nil artifact unless a
// session fails outright. Instruction blocks are appended, never prepended,
// and stay in every transcript fed forward.
func (s *EngineerSociety) Run(ctx context.Context, task []chat.Message) (*Artifact, error) {
	original := chat.CopyMessages(task)

	seed := append(chat.CopyMessages(task),
		prompt.DirectoryInstructions(s.cfg.OutputDir),
		prompt.EngineeringHeuristics(),
		prompt.NotebookReminder(),
	)

	result, err := s.cfg.Engineer.Run(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("%s: implementer round 0: %w", s.cfg.Name, err)
	}
	retained := s.retainContext(result.Transcript)

	history := chat.CopyMessages(retained)
	state := StateAborted
	revisions := 0
	evidenceAsked := false
	var lastCritic *chat.Message

	for {
		criticInput := chat.CopyMessages(original)
		if lastCritic != nil {
			criticInput = append(criticInput, *lastCritic)
		}
		criticInput = append(criticInput, retained...)
		criticInput = append(criticInput, prompt.CriticToolInstruction(s.cfg.OutputDir))
		if evidenceAsked {
			criticInput = append(criticInput, prompt.EvidenceReminder(s.cfg.OutputDir))
		}

		if s.cfg.CriticTools != nil {
			s.cfg.CriticTools.ResetCounts()
		}
		criticResult, err := s.cfg.Critic.Run(ctx, criticInput)
		if err != nil {
			return nil, fmt.Errorf("%s: critic round %d: %w", s.cfg.Name, revisions, err)
		}
		verdictMsg, ok := criticResult.LastMessage()
		if !ok {
			return nil, fmt.Errorf("%s: critic round %d produced no messages", s.cfg.Name, revisions)
		}

		// Classify on the raw content, then strip every control token so
		// downstream consumers never see them.
		verdict := ClassifyVerdict(verdictMsg.Content, s.cfg.ApproveToken, s.cfg.ReviseToken)
		stripped := verdictMsg.StripTokens(s.cfg.CriticTerminateToken, s.cfg.ReviseToken, s.cfg.ApproveToken)
		history = append(history, stripped)
		lastCritic = &stripped

		if verdict == VerdictApprove {
			if s.cfg.CriticTools != nil && s.cfg.CriticTools.TotalInvocations() == 0 && !evidenceAsked {
				s.logger.Warn("critic approved without consulting any tools, requesting a grounded re-review")
				evidenceAsked = true
				continue
			}
			s.logger.Info("critic approved after %d revision(s)", revisions)
			state = StateApproved
			break
		}
		if verdict == VerdictUnclear {
			s.logger.Warn("critic gave no clear approval or revision verdict, treating as revision")
		}

		revisions++
		if revisions > s.cfg.MaxRevisions {
			s.logger.Warn("revision cap (%d) hit, returning best-effort artifact", s.cfg.MaxRevisions)
			break
		}

		engineerInput := chat.CopyMessages(original)
		engineerInput = append(engineerInput, retained...)
		engineerInput = append(engineerInput,
			stripped,
			prompt.DirectoryReminder(s.cfg.OutputDir),
			prompt.TroubleshootingReminder(),
			prompt.FeedbackAcknowledgment(),
		)

		result, err = s.cfg.Engineer.Run(ctx, engineerInput)
		if err != nil {
			return nil, fmt.Errorf("%s: implementer round %d: %w", s.cfg.Name, revisions, err)
		}
		retained = s.retainContext(result.Transcript)
		history = append(history, retained...)
		evidenceAsked = false
	}

	artifact := &Artifact{State: state, Revisions: revisions, History: history}
	if s.cfg.Consolidator != nil {
		msg, err := s.consolidate(ctx, history)
		if err != nil {
			return nil, err
		}
		artifact.Message = msg
	} else {
		artifact.Message = chat.NewMessage(s.cfg.Name, formatReport(chat.LastN(history, s.cfg.MaxMessagesToReturn)))
	}
	return artifact, nil
}

// retainContext applies the carry-over filter: drop any message whose
// content mentions "error" (case-insensitive, a deliberately blunt guard
// against stale stack traces), strip the implementer terminate token from
// the last survivor, and keep only the trailing window.
func (s *EngineerSociety) retainContext(transcript []chat.Message) []chat.Message {
	kept := make([]chat.Message, 0, len(transcript))
	for _, m := range transcript {
		if strings.Contains(strings.ToLower(m.Content), "error") {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) > 0 {
		kept[len(kept)-1] = kept[len(kept)-1].StripTokens(s.cfg.EngineerTerminateToken)
	}
	return chat.CopyMessages(chat.LastN(kept, s.cfg.NumLastMessages))
}

func (s *EngineerSociety) consolidate(ctx context.Context, history []chat.Message) (chat.Message, error) {
	var sb strings.Builder
	sb.WriteString("\n# Original Task:\n")
	sb.WriteString(s.cfg.OriginalTask)
	sb.WriteString("\n\n# Engineer Implementation and Critic Feedback:\n")
	for i, m := range history {
		fmt.Fprintf(&sb, "\n\n==== ITERATION %d ====\n", i+1)
		fmt.Fprintf(&sb, "\nMessage_source: %s\n", m.Source)
		sb.WriteString(m.Content)
	}

	reply, err := s.cfg.Consolidator.Invoke(ctx, []chat.Message{chat.NewMessage(prompt.SourceUser, sb.String())})
	if err != nil {
		return chat.Message{}, fmt.Errorf("%s: consolidator: %w", s.cfg.Name, err)
	}
	reply.Content += "\n\n(Note: This is a summary of the engineer's implementation and the critic's feedback. The full implementation details and code can be found in the previous messages.)"
	return reply, nil
}

func formatReport(messages []chat.Message) string {
	var sb strings.Builder
	sb.WriteString("# TEAM B IMPLEMENTATION REPORT\n\n")
	for i, m := range messages {
		fmt.Fprintf(&sb, "\n## Message %d from %s\n", i+1, m.Source)
		sb.WriteString(m.Content)
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("=", 80))
		sb.WriteString("\n")
	}
	return sb.String()
}
