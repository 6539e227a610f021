// Package override wraps validation output with per-check importance and a
// justified override mechanism.
package override

import (
	"math"
	"sync"
	"time"

	"tradedesk/internal/validation"
)

// Importance controls how a check contributes to effective validity
type Importance string

const (
	ImportanceRequired Importance = "required"
	ImportanceWarning  Importance = "warning"
	ImportanceIgnored  Importance = "ignored"
)

// LogEntry records one override with its justification. The log is append-only.
type LogEntry struct {
	CheckName validation.CheckName `json:"check_name"`
	Reason    string               `json:"reason"`
	Timestamp time.Time            `json:"timestamp"`
}

// EffectiveCheck is one check with override state applied
type EffectiveCheck struct {
	validation.Check
	Importance        Importance `json:"importance"`
	Overridden        bool       `json:"overridden"`
	EffectivelyPassed bool       `json:"effectively_passed"`
}

// Summary is the effective validity of a validation result after overrides
type Summary struct {
	Checks                  []EffectiveCheck `json:"checks"`
	EffectivePassPercentage int              `json:"effective_pass_percentage"`
	EffectivelyValid        bool             `json:"effectively_valid"`
	FailedRequired          int              `json:"failed_required"`
	Log                     []LogEntry       `json:"log"`
}

// Manager holds importance settings and overrides for the active opportunity.
// Overrides are scoped to one decision: switching opportunities resets them.
type Manager struct {
	mu         sync.RWMutex
	importance map[validation.CheckName]Importance
	overridden map[validation.CheckName]bool
	log        []LogEntry
	now        func() time.Time
}

// NewManager creates an override manager with the default importance mapping:
// Trend Alignment is required, all other checks are warnings.
func NewManager() *Manager {
	return &Manager{
		importance: defaultImportance(),
		overridden: make(map[validation.CheckName]bool),
		now:        time.Now,
	}
}

func defaultImportance() map[validation.CheckName]Importance {
	importance := make(map[validation.CheckName]Importance, len(validation.CheckOrder))
	for _, name := range validation.CheckOrder {
		importance[name] = ImportanceWarning
	}
	importance[validation.CheckTrendAlignment] = ImportanceRequired
	return importance
}

// SetImportance reconfigures one check's importance.
func (m *Manager) SetImportance(name validation.CheckName, importance Importance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.importance[name] = importance
}

// Importance returns the configured importance for a check.
func (m *Manager) Importance(name validation.CheckName) Importance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if imp, ok := m.importance[name]; ok {
		return imp
	}
	return ImportanceWarning
}

// Override marks a failed warning-importance check as effectively passed,
// recording the justification. Required, ignored, already-passing and
// already-overridden checks are not overridable; those calls are no-ops
// returning false.
func (m *Manager) Override(result validation.Result, name validation.CheckName, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target *validation.Check
	for i := range result.Checks {
		if result.Checks[i].Name == name {
			target = &result.Checks[i]
			break
		}
	}
	if target == nil || target.Passed {
		return false
	}
	if m.importance[name] != ImportanceWarning {
		return false
	}
	if m.overridden[name] {
		return false
	}

	m.overridden[name] = true
	m.log = append(m.log, LogEntry{
		CheckName: name,
		Reason:    reason,
		Timestamp: m.now(),
	})
	return true
}

// Reset clears all overrides and the log. Called when the active opportunity
// changes; overrides never carry forward to another decision.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overridden = make(map[validation.CheckName]bool)
	m.log = nil
}

// Apply computes effective validity: ignored checks are excluded from both
// sides of the percentage, passed-or-overridden counts in the numerator, and
// any failed required check vetoes validity outright.
func (m *Manager) Apply(result validation.Result) Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := Summary{
		Log: append([]LogEntry(nil), m.log...),
	}

	counted := 0
	effectivePassed := 0

	for _, check := range result.Checks {
		importance, ok := m.importance[check.Name]
		if !ok {
			importance = ImportanceWarning
		}

		effective := EffectiveCheck{
			Check:      check,
			Importance: importance,
			Overridden: m.overridden[check.Name],
		}
		effective.EffectivelyPassed = check.Passed || effective.Overridden
		summary.Checks = append(summary.Checks, effective)

		if importance == ImportanceIgnored {
			continue
		}
		counted++
		if effective.EffectivelyPassed {
			effectivePassed++
		}
		if importance == ImportanceRequired && !check.Passed {
			summary.FailedRequired++
		}
	}

	if counted > 0 {
		summary.EffectivePassPercentage = int(math.Round(float64(effectivePassed) / float64(counted) * 100))
	}
	summary.EffectivelyValid = summary.FailedRequired == 0 && summary.EffectivePassPercentage >= 60

	return summary
}
