// Package router selects a cost-appropriate model for each request and prices
// token usage.
//
// Selection is a pure, total function over the task-type taxonomy crossed
// with a context-size threshold. The switch is exhaustive over every declared
// TaskType; TestSelectCoversAllTaskTypes enumerates the full matrix so a new
// task type cannot silently fall through to the default.
package router

// TaskType classifies what the caller wants from the model.
type TaskType string

// The task-type taxonomy. Anything else routes to the default model.
const (
	TaskChat           TaskType = "chat"
	TaskAnalysis       TaskType = "analysis"
	TaskRecommendation TaskType = "recommendation"
	TaskParsing        TaskType = "parsing"
	TaskExtraction     TaskType = "extraction"
)

// AllTaskTypes lists every declared task type, for exhaustiveness tests and
// prompt tables.
var AllTaskTypes = []TaskType{
	TaskChat, TaskAnalysis, TaskRecommendation, TaskParsing, TaskExtraction,
}

// Model tiers available through the gateway.
const (
	// ModelPremium is the highest-capability tier for reasoning-heavy work
	// over large context.
	ModelPremium = "google/gemini-2.5-pro"

	// ModelStandard is the mid-tier default: balanced cost and capability.
	ModelStandard = "google/gemini-2.5-flash"

	// ModelEconomy is the cheapest tier for plain conversation.
	ModelEconomy = "google/gemini-2.5-flash-lite"
)

// LargeContextThreshold is the context size (in characters) above which
// reasoning-heavy tasks route to the premium tier.
const LargeContextThreshold = 10000

// Selection is the routing outcome.
type Selection struct {
	Model  string
	Reason string
}

// Select maps (task type, context length) to a model. Pure and total:
// every TaskType has an explicit arm and unrecognized values take the
// default arm.
func Select(task TaskType, contextLength int) Selection {
	switch task {
	case TaskAnalysis, TaskRecommendation:
		if contextLength > LargeContextThreshold {
			return Selection{
				Model:  ModelPremium,
				Reason: "Complex reasoning over large context",
			}
		}
		return Selection{
			Model:  ModelStandard,
			Reason: "Reasoning task with moderate context",
		}
	case TaskParsing, TaskExtraction:
		// Precision-sensitive regardless of context size.
		return Selection{
			Model:  ModelStandard,
			Reason: "Precision task, balanced model",
		}
	case TaskChat:
		return Selection{
			Model:  ModelEconomy,
			Reason: "Conversational query, fast model",
		}
	default:
		return Selection{
			Model:  ModelStandard,
			Reason: "Default model",
		}
	}
}
