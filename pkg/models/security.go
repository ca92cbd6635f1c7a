package models

import (
	"encoding/json"
	"fmt"
)

// RiskLevel classifies how dangerous a tool invocation is. Levels are ordered;
// classification may only raise the level within one invocation's analysis,
// never lower it.
type RiskLevel int

const (
	RiskReadOnly RiskLevel = iota
	RiskReadWrite
	RiskDestructive
	RiskCritical
)

var riskLevelNames = map[RiskLevel]string{
	RiskReadOnly:    "read_only",
	RiskReadWrite:   "read_write",
	RiskDestructive: "destructive",
	RiskCritical:    "critical",
}

// String returns the snake-case name of the risk level.
func (r RiskLevel) String() string {
	if name, ok := riskLevelNames[r]; ok {
		return name
	}
	return fmt.Sprintf("risk_level(%d)", int(r))
}

// Elevate raises the risk one tier. Critical is a ceiling.
func (r RiskLevel) Elevate() RiskLevel {
	if r >= RiskCritical {
		return RiskCritical
	}
	return r + 1
}

// MarshalJSON encodes the level as its string name.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a string name back into a level.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for level, n := range riskLevelNames {
		if n == name {
			*r = level
			return nil
		}
	}
	return fmt.Errorf("unknown risk level %q", name)
}

// ParseRiskLevel converts a config string into a RiskLevel.
func ParseRiskLevel(name string) (RiskLevel, error) {
	for level, n := range riskLevelNames {
		if n == name {
			return level, nil
		}
	}
	return RiskReadOnly, fmt.Errorf("unknown risk level %q", name)
}

// ThreatType categorizes a detected security concern.
type ThreatType string

const (
	ThreatMaliciousCommand    ThreatType = "malicious_command"
	ThreatSensitiveFileAccess ThreatType = "sensitive_file_access"
	ThreatNetworkExfiltration ThreatType = "network_exfiltration"
	ThreatPrivilegeEscalation ThreatType = "privilege_escalation"
	ThreatCodeExecution       ThreatType = "code_execution"
	ThreatSystemModification  ThreatType = "system_modification"
	ThreatRepetition          ThreatType = "repetition"
)

// ThreatLevel grades a threat's severity. Levels are ordered.
type ThreatLevel int

const (
	ThreatLevelNone ThreatLevel = iota
	ThreatLevelLow
	ThreatLevelMedium
	ThreatLevelHigh
	ThreatLevelCritical
)

var threatLevelNames = map[ThreatLevel]string{
	ThreatLevelNone:     "none",
	ThreatLevelLow:      "low",
	ThreatLevelMedium:   "medium",
	ThreatLevelHigh:     "high",
	ThreatLevelCritical: "critical",
}

// String returns the lowercase name of the threat level.
func (t ThreatLevel) String() string {
	if name, ok := threatLevelNames[t]; ok {
		return name
	}
	return fmt.Sprintf("threat_level(%d)", int(t))
}

// MarshalJSON encodes the level as its string name.
func (t ThreatLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a string name back into a level.
func (t *ThreatLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for level, n := range threatLevelNames {
		if n == name {
			*t = level
			return nil
		}
	}
	return fmt.Errorf("unknown threat level %q", name)
}

// SecurityThreat is one pattern-matched concern found in a tool call.
type SecurityThreat struct {
	Type           ThreatType  `json:"type"`
	Level          ThreatLevel `json:"level"`
	Description    string      `json:"description"`
	MatchedPattern string      `json:"matched_pattern"`
	Recommendation string      `json:"recommendation,omitempty"`
}

// InspectionResult aggregates all threats found in one tool call.
// IsSafe holds exactly when Threats is empty.
type InspectionResult struct {
	IsSafe         bool             `json:"is_safe"`
	Threats        []SecurityThreat `json:"threats,omitempty"`
	MaxThreatLevel ThreatLevel      `json:"max_threat_level"`
}

// NewInspectionResult derives IsSafe and MaxThreatLevel from the threat list.
func NewInspectionResult(threats []SecurityThreat) *InspectionResult {
	result := &InspectionResult{
		IsSafe:         len(threats) == 0,
		Threats:        threats,
		MaxThreatLevel: ThreatLevelNone,
	}
	for _, threat := range threats {
		if threat.Level > result.MaxThreatLevel {
			result.MaxThreatLevel = threat.Level
		}
	}
	return result
}
