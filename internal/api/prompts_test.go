package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pointstack/pointstack/internal/retrieval"
	"github.com/pointstack/pointstack/internal/router"
)

func TestTaskInstructionCoversEveryTaskType(t *testing.T) {
	seen := make(map[string]bool)
	for _, task := range router.AllTaskTypes {
		instruction := taskInstruction(task)
		assert.NotEmpty(t, instruction, "task %q has no instruction", task)
		seen[instruction] = true
	}
	// Every task except the default arm gets a distinct instruction.
	assert.GreaterOrEqual(t, len(seen), len(router.AllTaskTypes)-1)
}

func TestTaskInstructionUnknownFallsBack(t *testing.T) {
	assert.Equal(t, taskInstruction(router.TaskChat), taskInstruction(router.TaskType("mystery")))
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := buildSystemPrompt(router.TaskAnalysis, "### Your cards\n- Travel Plus: 12000 points")

	assert.True(t, strings.HasPrefix(prompt, basePrompt))
	assert.Contains(t, prompt, taskInstruction(router.TaskAnalysis))
	assert.Contains(t, prompt, "Travel Plus")
}

func TestBuildSystemPromptWithNotice(t *testing.T) {
	prompt := buildSystemPrompt(router.TaskChat, retrieval.NoUserDataNotice)
	assert.Contains(t, prompt, retrieval.NoUserDataNotice)
}
