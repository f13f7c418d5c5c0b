// Package model contains domain records passed between layers.
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/framecoach/internal/domain/telemetry"
)

const (
	DefaultTemplateName = "New composition"
	MaxTemplateNameLen  = 50
)

var (
	ErrTemplateNameTooLong = errors.New("template name longer than 50 characters")
	ErrDuplicateRequest    = errors.New("request already submitted")
)

// Icon is a symbolic tag the client maps to a glyph.
type Icon string

const (
	IconTarget  Icon = "target"
	IconRuler   Icon = "ruler"
	IconPerson  Icon = "person"
	IconPalette Icon = "palette"
	IconSun     Icon = "sun"
	IconRotate  Icon = "rotate"
	IconGrid    Icon = "grid"
	IconDown    Icon = "down"
	IconClock   Icon = "clock"
	IconEyes    Icon = "eyes"
	IconBulb    Icon = "bulb"
	IconCamera  Icon = "camera"
	IconBolt    Icon = "bolt"
	IconPan     Icon = "pan"
)

// RuleID names the rule that produced a command.
type RuleID string

// Command is one ranked correction. Priority 0 is reserved for template
// directives; lower numbers matter more.
type Command struct {
	Rule     RuleID `json:"rule"`
	Verb     string `json:"verb"`
	Detail   string `json:"detail"`
	Priority int    `json:"priority"`
	Icon     Icon   `json:"icon"`
}

// Template is a saved telemetry snapshot used as a comparison target.
// It is never mutated after creation.
type Template struct {
	ID        string              `json:"id"`
	UserID    string              `json:"userId"`
	Name      string              `json:"name"`
	Mode      telemetry.Mode      `json:"mode"`
	Telemetry telemetry.Telemetry `json:"telemetry"`
	CreatedAt time.Time           `json:"createdAt"`
}

// ActiveFor reports whether t applies to mode. A nil template is inactive.
func (t *Template) ActiveFor(mode telemetry.Mode) bool {
	return t != nil && t.Mode == mode
}

// NormalizeTemplateName trims name and substitutes the default when blank.
func NormalizeTemplateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultTemplateName, nil
	}
	if utf8.RuneCountInString(name) > MaxTemplateNameLen {
		return "", ErrTemplateNameTooLong
	}
	return name, nil
}

// AnalysisRequest asks for one image to be analysed in one mode.
type AnalysisRequest struct {
	RequestID  string         // optional idempotency key for async submits
	SessionID  string         // requests sharing a session supersede each other
	UserID     string         // owner of TemplateID
	Image      string         // data URL or base64 payload, forwarded as-is
	Mode       telemetry.Mode
	TemplateID string         // saved template to compare against
	Template   *Template      // explicit template, takes precedence over TemplateID
}

// AnalysisResult is the immutable outcome of one request.
type AnalysisResult struct {
	ID         string              `json:"id"`
	SessionID  string              `json:"sessionId"`
	Generation uint64              `json:"generation"`
	Mode       telemetry.Mode      `json:"mode"`
	Telemetry  telemetry.Telemetry `json:"telemetry"`
	Commands   []Command           `json:"commands"`
	Rationale  string              `json:"rationale"`
	TemplateID string              `json:"templateId,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`

	// Template is the template the commands were computed against.
	Template *Template `json:"-"`
}

// Job is an analysis request queued for a worker.
type Job struct {
	ID         string
	Generation uint64
	Request    AnalysisRequest
	Enqueued   time.Time
}

type SessionStatus string

const (
	StatusIdle    SessionStatus = "idle"
	StatusPending SessionStatus = "pending"
	StatusDone    SessionStatus = "done"
	StatusFailed  SessionStatus = "failed"
)

// ErrorInfo is the client-safe description of a failed request.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionState is the latest published outcome for a session.
type SessionState struct {
	SessionID  string          `json:"sessionId"`
	Status     SessionStatus   `json:"status"`
	Generation uint64          `json:"generation"`
	Mode       telemetry.Mode  `json:"mode,omitempty"`
	TemplateID string          `json:"templateId,omitempty"`
	Result     *AnalysisResult `json:"result,omitempty"`
	Error      *ErrorInfo      `json:"error,omitempty"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Terminal reports whether the session is no longer waiting on a request.
func (s SessionState) Terminal() bool {
	return s.Status == StatusDone || s.Status == StatusFailed
}
