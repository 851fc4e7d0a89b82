package api

import (
	"strings"

	"github.com/pointstack/pointstack/internal/router"
)

const basePrompt = `You are a helpful assistant for a credit card rewards dashboard.
Users ask about their points, card benefits, spending, and redemption options.
Be concise and specific. When user data is provided below, ground your answer in it.`

// taskInstruction returns the task-specific portion of the system prompt.
// The switch is exhaustive over router task types; unrecognized values take
// the default arm, mirroring router.Select.
func taskInstruction(task router.TaskType) string {
	switch task {
	case router.TaskAnalysis:
		return "Analyze the user's spending and rewards data. Point out patterns, totals, and anomalies with concrete numbers."
	case router.TaskRecommendation:
		return "Recommend the best card or redemption option for the user's situation. Justify each recommendation with their data."
	case router.TaskParsing:
		return "Extract the requested fields from the provided text. Respond with only the structured result, no commentary."
	case router.TaskExtraction:
		return "Pull the specific values the user asked for out of their data. Respond briefly with just those values."
	case router.TaskChat:
		return "Answer the user's question conversationally."
	default:
		return "Answer the user's question conversationally."
	}
}

// buildSystemPrompt assembles the system prompt from the task instruction
// and the retrieved context section. contextSection must never be empty;
// the aggregator substitutes a fixed notice when no user data exists.
func buildSystemPrompt(task router.TaskType, contextSection string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	b.WriteString(taskInstruction(task))
	b.WriteString("\n\n")
	b.WriteString(contextSection)
	return b.String()
}
