package orchestrator

import (
	"fmt"

	"baagent/internal/backlog"
)

// Agent names, used in logs and in SpecialistError.
const (
	AgentPlanner = "planner"
	AgentTRD     = "trd"
	AgentHLD     = "hld"
	AgentLLD     = "lld"
	AgentBacklog = "backlog"
)

const plannerPrompt = `Analyze the following business requirements document, including its text and any images. Create a concise, high-level plan that summarizes the key components, user roles, and primary user flows. This plan will be used by other specialist agents to generate detailed documents.

--- DOCUMENT TEXT ---
%s
--- DOCUMENT IMAGES ---
`

const trdPrompt = `Using the following high-level plan and the original requirements text, write a comprehensive Technical Requirements Document (TRD) in Markdown format. Ensure it is detailed and well-structured.

--- HIGH-LEVEL PLAN ---
%s

--- ORIGINAL REQUIREMENTS TEXT ---
%s
`

const diagramPrompt = `Based on the following high-level plan, generate a %s diagram. The output must be ONLY the Mermaid code block for a ` + "`%s`" + ` diagram. Do not include any explanatory text or markdown backticks.

--- HIGH-LEVEL PLAN ---
%s
`

const backlogPrompt = `Based on the following high-level plan and original requirements, generate a hierarchical project backlog.
The output MUST be a single, well-formed JSON object.
The JSON object must have a single top-level key named "%s".
The value of "%s" MUST be a JSON array of Epic objects.

Example of the required output structure:
{
  "%s": [
    {
      "type": "Epic",
      "title": "Epic Title Here",
      "children": [
        {
          "type": "Feature",
          "title": "Feature Title Here",
          "children": [
            {
              "type": "User Story",
              "title": "User Story Title Here"
            }
          ]
        }
      ]
    }
  ]
}

--- HIGH-LEVEL PLAN ---
%s

--- ORIGINAL REQUIREMENTS TEXT ---
%s
`

func buildPlannerPrompt(text string) string {
	return fmt.Sprintf(plannerPrompt, text)
}

func buildTRDPrompt(plan, text string) string {
	return fmt.Sprintf(trdPrompt, plan, text)
}

// buildDiagramPrompt asks for a flowchart for the HLD and a sequence diagram
// for the LLD.
func buildDiagramPrompt(agent, plan string) string {
	kind, syntax := "HLD", "graph TD"
	if agent == AgentLLD {
		kind, syntax = "LLD", "sequenceDiagram"
	}
	return fmt.Sprintf(diagramPrompt, kind, syntax, plan)
}

func buildBacklogPrompt(plan, text string) string {
	k := backlog.ResponseKey
	return fmt.Sprintf(backlogPrompt, k, k, k, plan, text)
}
