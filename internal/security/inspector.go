package security

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/pkg/models"
)

const (
	// recentCommandCapacity bounds the repetition memory; the oldest entry
	// is evicted first once full.
	recentCommandCapacity = 100

	// defaultMatchTimeout bounds a single pattern evaluation.
	defaultMatchTimeout = 100 * time.Millisecond
)

// InspectorConfig configures threat inspection behavior.
type InspectorConfig struct {
	// MatchTimeout bounds each regex evaluation. A match that does not
	// finish in time is logged and skipped. Defaults to 100ms.
	MatchTimeout time.Duration
}

// Inspector scans tool call parameters for threat patterns.
//
// Inspection is stateless except for a bounded memory of recently seen
// invocations used to flag repetition. An Inspector is safe for concurrent
// use from multiple conversations.
type Inspector struct {
	logger       *observability.Logger
	matchTimeout time.Duration

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	next  int
}

// NewInspector creates a threat inspector. A nil logger falls back to a
// quiet default so tests can construct inspectors inline.
func NewInspector(config InspectorConfig, logger *observability.Logger) *Inspector {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Level: "error"})
	}
	timeout := config.MatchTimeout
	if timeout <= 0 {
		timeout = defaultMatchTimeout
	}
	return &Inspector{
		logger:       logger,
		matchTimeout: timeout,
		seen:         make(map[string]struct{}, recentCommandCapacity),
		order:        make([]string, 0, recentCommandCapacity),
	}
}

// Inspect scans a tool call's parameter text against every threat category
// and the sensitive-path list, and flags repeated invocations. The result
// aggregates all threats found; IsSafe is true iff none were.
func (i *Inspector) Inspect(ctx context.Context, call models.ToolCall) *models.InspectionResult {
	text := strings.ToLower(string(call.Parameters))

	var threats []models.SecurityThreat

	for _, category := range threatCategories {
		for _, pattern := range category.patterns {
			matched, ok := i.matchPattern(ctx, pattern, text)
			if !ok {
				continue
			}
			level := category.baseLevel
			if isDestructive(matched) {
				level = models.ThreatLevelCritical
			}
			threats = append(threats, models.SecurityThreat{
				Type:           category.threatType,
				Level:          level,
				Description:    pattern.description,
				MatchedPattern: matched,
				Recommendation: pattern.recommendation,
			})
		}
	}

	if IsFileTool(call.Name) {
		for _, path := range SensitivePaths {
			if strings.Contains(text, path) {
				threats = append(threats, models.SecurityThreat{
					Type:           models.ThreatSensitiveFileAccess,
					Level:          models.ThreatLevelHigh,
					Description:    fmt.Sprintf("access to sensitive path %s", path),
					MatchedPattern: path,
					Recommendation: "Confirm access to this location is required for the task",
				})
			}
		}
	}

	if i.sawRecently(call.Name + ":" + string(call.Parameters)) {
		threats = append(threats, models.SecurityThreat{
			Type:           models.ThreatRepetition,
			Level:          models.ThreatLevelMedium,
			Description:    "identical invocation seen recently",
			MatchedPattern: call.Name,
			Recommendation: "Check whether the agent is stuck in a loop",
		})
	}

	result := models.NewInspectionResult(threats)
	if !result.IsSafe {
		i.logger.Debug(ctx, "threats detected",
			"tool", call.Name,
			"count", len(threats),
			"max_level", result.MaxThreatLevel.String(),
		)
	}
	return result
}

// matchPattern evaluates one pattern against the text, returning the matched
// portion. Substring patterns match directly; regex patterns run under the
// configured timeout and are skipped with a warning when they exceed it.
func (i *Inspector) matchPattern(ctx context.Context, pattern threatPattern, text string) (string, bool) {
	if pattern.regex == nil {
		if strings.Contains(text, pattern.substring) {
			return pattern.substring, true
		}
		return "", false
	}
	return i.matchRegex(ctx, pattern.regex, text)
}

func (i *Inspector) matchRegex(ctx context.Context, re *regexp.Regexp, text string) (string, bool) {
	type matchResult struct {
		matched string
		ok      bool
	}

	done := make(chan matchResult, 1)
	go func() {
		m := re.FindString(text)
		done <- matchResult{matched: m, ok: m != ""}
	}()

	select {
	case r := <-done:
		return r.matched, r.ok
	case <-time.After(i.matchTimeout):
		i.logger.Warn(ctx, "pattern evaluation timed out, skipping",
			"pattern", re.String(),
			"timeout", i.matchTimeout.String(),
		)
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// sawRecently reports whether the key was inspected before and records it.
// The memory holds the last recentCommandCapacity distinct keys.
func (i *Inspector) sawRecently(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.seen[key]; ok {
		return true
	}

	if len(i.order) < recentCommandCapacity {
		i.order = append(i.order, key)
	} else {
		delete(i.seen, i.order[i.next])
		i.order[i.next] = key
		i.next = (i.next + 1) % recentCommandCapacity
	}
	i.seen[key] = struct{}{}
	return false
}
