package cycleengine

// planSchemaJSON is the PLAN phase's response contract: a goal, an
// approach, and exactly one next action.
const planSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["goal", "next_action"],
  "properties": {
    "goal": {"type": "string"},
    "approach": {"type": "string"},
    "next_action": {
      "type": "object",
      "required": ["action_type"],
      "properties": {
        "action_type": {
          "type": "string",
          "enum": ["execute_command", "read_file", "write_file", "ask_user", "complete_task", "block_task", "internal_reasoning"]
        },
        "payload": {"type": "object"},
        "reasoning": {"type": "string"}
      }
    },
    "remaining_steps": {
      "type": "array",
      "items": {"type": "string"}
    },
    "confidence": {"type": "number"}
  }
}`

// reflectSchemaJSON is the REFLECT phase's response contract.
const reflectSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["progress_made", "what_learned"],
  "properties": {
    "progress_made": {"type": "boolean"},
    "what_learned": {"type": "string"},
    "plan_still_valid": {"type": "boolean"},
    "stuck_indicators": {
      "type": "array",
      "items": {"type": "string"}
    },
    "confidence": {"type": "number"},
    "next_step_suggestion": {"type": "string"},
    "proposed_tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "justification": {"type": "string"},
          "priority": {"type": "string"},
          "estimated_value": {"type": "number"},
          "category": {"type": "string"}
        }
      }
    }
  }
}`
