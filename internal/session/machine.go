package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"mayanetra/internal/models"
	"mayanetra/internal/predictor"

	"go.uber.org/zap"
)

// AIThreshold is the probability at or above which text is shown as AI-generated
const AIThreshold = 0.5

// UnknownLabel is saved to history when no result is on screen
const UnknownLabel = "Unknown"

// SampleText is loaded by LoadSample
const SampleText = "The concept of artificial intelligence continues to evolve as new models and techniques are developed. With advancements in natural language processing, machines are increasingly capable of mimicking human communication."

// Notices shown to the user
const (
	NoticeEmptyInput      = "Please enter some text"
	NoticeAnalysisDone    = "Analysis complete"
	NoticeServerError     = "Server error"
	NoticeNothingToSave   = "Nothing to save"
	NoticeSaved           = "Saved to history"
	NoticeSessionOnly     = "History kept for this session only"
	NoticeHistoryCleared  = "History cleared"
	NoticeLoadedHistory   = "Loaded from history"
	NoticeSampleLoaded    = "Sample loaded"
	NoticeTextCopied      = "Text copied"
	NoticeThemeNotSaved   = "Theme not saved"
	NoticeHistoryNotClear = "History could not be cleared from storage"
)

var (
	// ErrEmptyInput is returned when the submitted text is blank after trimming
	ErrEmptyInput = errors.New("input is empty")
	// ErrBusy is returned when a submission is already in flight
	ErrBusy = errors.New("a submission is already in flight")
	// ErrSuperseded is returned to a submitter whose response arrived after its cycle was replaced
	ErrSuperseded = errors.New("submission superseded")
	// ErrNothingToSave is returned by SaveToHistory when the input is blank
	ErrNothingToSave = errors.New("nothing to save")
	// ErrNoSuchEntry is returned by LoadFromHistory for an out of range index
	ErrNoSuchEntry = errors.New("no such history entry")
)

// Classifier sends text to the remote predictor
type Classifier interface {
	Classify(ctx context.Context, text string) (*models.PredictionResult, error)
}

// HistoryLog is the persisted record of saved interactions
type HistoryLog interface {
	Append(ctx context.Context, entry models.HistoryEntry) error
	List() []models.HistoryEntry
	Clear(ctx context.Context) error
}

// ThemeSetting is the process-wide theme preference
type ThemeSetting interface {
	Get() models.Theme
	Set(ctx context.Context, t models.Theme) error
	Toggle(ctx context.Context) (models.Theme, error)
}

// Notifier receives user-facing side effects. Implementations must not block.
type Notifier interface {
	Notify(message string)
	Celebrate()
}

// Deps groups the collaborators of a Machine
type Deps struct {
	Classifier Classifier
	History    HistoryLog
	Theme      ThemeSetting
	Notifier   Notifier
	Logger     *zap.Logger
	Now        func() time.Time
}

// Machine owns the submission lifecycle and everything the user can see.
// All methods are safe for concurrent use; the classifier is called without holding the lock.
type Machine struct {
	mu sync.Mutex

	classifier Classifier
	history    HistoryLog
	theme      ThemeSetting
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time

	state  State
	input  string
	result *models.PredictionResult
	reason string
	cycle  uint64
	label  string // last result label; outlives Dismiss and ClearInput
}

// NewMachine creates a machine in the Idle state
func NewMachine(d Deps) *Machine {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		classifier: d.Classifier,
		history:    d.History,
		theme:      d.Theme,
		notifier:   d.Notifier,
		logger:     logger,
		now:        now,
		state:      StateIdle,
	}
}

// Submit runs one classification cycle for text and blocks until it ends.
// The input field is set to text first, as if the user had typed it.
func (m *Machine) Submit(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)

	m.mu.Lock()
	if m.state == StateSubmitting {
		m.mu.Unlock()
		m.logger.Debug("Submit rejected, cycle in flight", zap.Uint64("cycle", m.cycle))
		return ErrBusy
	}
	if trimmed == "" {
		m.mu.Unlock()
		m.notifier.Notify(NoticeEmptyInput)
		return ErrEmptyInput
	}

	m.cycle++
	cycle := m.cycle
	m.input = text
	m.state = StateSubmitting
	m.result = nil
	m.reason = ""
	m.mu.Unlock()

	m.logger.Info("Submission started", zap.Uint64("cycle", cycle), zap.Int("chars", utf8.RuneCountInString(trimmed)))

	result, err := m.classifier.Classify(ctx, trimmed)

	m.mu.Lock()
	if cycle != m.cycle || m.state != StateSubmitting {
		m.mu.Unlock()
		m.logger.Info("Discarding stale response", zap.Uint64("cycle", cycle))
		return ErrSuperseded
	}

	if err != nil {
		var svcErr *predictor.ServiceError
		reason := NoticeServerError
		if errors.As(err, &svcErr) {
			reason = svcErr.Message
		}
		m.state = StateFailed
		m.reason = reason
		m.mu.Unlock()

		m.logger.Warn("Submission failed", zap.Uint64("cycle", cycle), zap.Error(err))
		m.notifier.Notify(reason)
		return nil
	}

	m.state = StateResulted
	m.result = result
	m.label = result.Label
	m.mu.Unlock()

	m.logger.Info("Submission resulted",
		zap.Uint64("cycle", cycle),
		zap.String("label", result.Label),
		zap.Float64("probability", result.Probability))
	m.notifier.Celebrate()
	m.notifier.Notify(NoticeAnalysisDone)
	return nil
}

// SubmitInput submits the current input field
func (m *Machine) SubmitInput(ctx context.Context) error {
	m.mu.Lock()
	text := m.input
	m.mu.Unlock()
	return m.Submit(ctx, text)
}

// Dismiss hides a shown result or failure and returns to Idle.
// It reports whether anything changed.
func (m *Machine) Dismiss() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateResulted && m.state != StateFailed {
		return false
	}
	m.state = StateIdle
	m.result = nil
	m.reason = ""
	return true
}

// ClearInput empties the input field and returns to Idle from any state.
// A cycle still in flight is abandoned; its response will be discarded.
func (m *Machine) ClearInput() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = ""
	m.state = StateIdle
	m.result = nil
	m.reason = ""
}

// SetInput mirrors the input field. Setting it to "" is the same as ClearInput.
func (m *Machine) SetInput(text string) {
	if text == "" {
		m.ClearInput()
		return
	}
	m.mu.Lock()
	m.input = text
	m.mu.Unlock()
}

// LoadSample puts the sample paragraph in the input field
func (m *Machine) LoadSample() {
	m.SetInput(SampleText)
	m.notifier.Notify(NoticeSampleLoaded)
}

// CopyInput returns the input field for the clipboard
func (m *Machine) CopyInput() string {
	m.mu.Lock()
	text := m.input
	m.mu.Unlock()
	m.notifier.Notify(NoticeTextCopied)
	return text
}

// SaveToHistory records the input and the label of the last result shown.
// The label stays after the result is dismissed; before any result it is UnknownLabel.
// A storage failure still keeps the entry for this session; the error wraps history.ErrNotPersisted.
func (m *Machine) SaveToHistory(ctx context.Context) (models.HistoryEntry, error) {
	m.mu.Lock()
	input := m.input
	label := m.label
	if label == "" {
		label = UnknownLabel
	}
	m.mu.Unlock()

	if strings.TrimSpace(input) == "" {
		m.notifier.Notify(NoticeNothingToSave)
		return models.HistoryEntry{}, ErrNothingToSave
	}

	entry := models.HistoryEntry{
		Text:      input,
		Label:     label,
		Timestamp: m.now().UnixMilli(),
	}

	if err := m.history.Append(ctx, entry); err != nil {
		m.logger.Warn("History entry not persisted", zap.Error(err))
		m.notifier.Notify(NoticeSessionOnly)
		return entry, fmt.Errorf("save to history: %w", err)
	}

	m.notifier.Notify(NoticeSaved)
	return entry, nil
}

// ClearHistory empties the history log
func (m *Machine) ClearHistory(ctx context.Context) error {
	if err := m.history.Clear(ctx); err != nil {
		m.logger.Warn("History not cleared from storage", zap.Error(err))
		m.notifier.Notify(NoticeHistoryNotClear)
		return fmt.Errorf("clear history: %w", err)
	}
	m.notifier.Notify(NoticeHistoryCleared)
	return nil
}

// History returns saved entries, most recent first
func (m *Machine) History() []models.HistoryEntry {
	return m.history.List()
}

// LoadFromHistory copies the text of the index-th entry (most recent first) into the input field
func (m *Machine) LoadFromHistory(index int) (models.HistoryEntry, error) {
	entries := m.history.List()
	if index < 0 || index >= len(entries) {
		return models.HistoryEntry{}, ErrNoSuchEntry
	}
	entry := entries[index]
	m.SetInput(entry.Text)
	m.notifier.Notify(NoticeLoadedHistory)
	return entry, nil
}

// Theme returns the active theme
func (m *Machine) Theme() models.Theme {
	return m.theme.Get()
}

// SetTheme activates t. A persistence failure is reported but t stays active.
func (m *Machine) SetTheme(ctx context.Context, t models.Theme) error {
	t, err := models.ParseTheme(string(t))
	if err != nil {
		return err
	}
	if err := m.theme.Set(ctx, t); err != nil {
		m.notifier.Notify(NoticeThemeNotSaved)
		return err
	}
	return nil
}

// ToggleTheme switches between dark and light
func (m *Machine) ToggleTheme(ctx context.Context) (models.Theme, error) {
	t, err := m.theme.Toggle(ctx)
	if err != nil {
		m.notifier.Notify(NoticeThemeNotSaved)
	}
	return t, err
}

// View is a snapshot of everything a rendering surface needs
type View struct {
	State        State                    `json:"state"`
	Input        string                   `json:"input"`
	Words        int                      `json:"words"`
	Chars        int                      `json:"chars"`
	Result       *models.PredictionResult `json:"result,omitempty"`
	Class        Class                    `json:"class,omitempty"`
	MeterPercent int                      `json:"meter_percent"`
	Reason       string                   `json:"reason,omitempty"`
	Theme        models.Theme             `json:"theme"`
	Cycle        uint64                   `json:"cycle"`
}

// View returns the current snapshot
func (m *Machine) View() View {
	m.mu.Lock()
	v := View{
		State:  m.state,
		Input:  m.input,
		Reason: m.reason,
		Cycle:  m.cycle,
	}
	if m.state == StateResulted && m.result != nil {
		r := *m.result
		v.Result = &r
		v.Class = ClassFor(r.Probability)
		v.MeterPercent = MeterPercent(r.Probability)
	}
	m.mu.Unlock()

	v.Words, v.Chars = Counts(v.Input)
	v.Theme = m.theme.Get()
	return v
}

// ClassFor maps a probability onto the displayed class
func ClassFor(probability float64) Class {
	if probability >= AIThreshold {
		return ClassAI
	}
	return ClassHuman
}

// MeterPercent renders probability as a whole percentage
func MeterPercent(probability float64) int {
	return int(math.Round(probability * 100))
}

// Counts returns the word and character counts of text
func Counts(text string) (words, chars int) {
	return len(strings.Fields(text)), utf8.RuneCountInString(text)
}
