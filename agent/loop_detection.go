package agent

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// toolCallSignature computes a deterministic signature for a tool call.
// Arguments are compacted first so formatting differences between otherwise
// identical calls do not defeat detection.
func toolCallSignature(name string, arguments json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, arguments); err == nil {
		arguments = buf.Bytes()
	}
	sum := sha256.Sum256(arguments)
	return name + ":" + hex.EncodeToString(sum[:8])
}

// recentToolCallSignatures returns the signatures of the last count tool
// calls, in chronological order. Non-assistant turns are skipped.
func recentToolCallSignatures(history []Turn, count int) []string {
	var sigs []string
	for _, turn := range history {
		if turn.Kind != TurnAssistant || turn.Assistant == nil {
			continue
		}
		for _, tc := range turn.Assistant.ToolCalls {
			sigs = append(sigs, toolCallSignature(tc.Name, tc.Arguments))
		}
	}
	if len(sigs) > count {
		sigs = sigs[len(sigs)-count:]
	}
	return sigs
}

// repeatsWithPeriod reports whether every signature equals the one period
// positions before it, i.e. the sequence is a whole number of repetitions of
// its leading period-length prefix.
func repeatsWithPeriod(sigs []string, period int) bool {
	for i := period; i < len(sigs); i++ {
		if sigs[i] != sigs[i-period] {
			return false
		}
	}
	return true
}

// DetectLoop reports whether the last windowSize tool calls repeat with a
// period of 1, 2, or 3. Fewer than windowSize calls never trigger.
func DetectLoop(history []Turn, windowSize int) bool {
	sigs := recentToolCallSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}
	for period := 1; period <= 3; period++ {
		if windowSize%period == 0 && repeatsWithPeriod(sigs, period) {
			return true
		}
	}
	return false
}
