package agent

// Client tool definitions handed to the backend at session creation. Each
// invocation comes back over the session websocket as a
// client_tool_invocation event and is answered by the bridge's dispatcher.

type selectedTool struct {
	TemporaryTool temporaryTool `json:"temporaryTool"`
}

type temporaryTool struct {
	ModelToolName     string         `json:"modelToolName"`
	Description       string         `json:"description"`
	DynamicParameters []dynamicParam `json:"dynamicParameters,omitempty"`
	StaticParameters  []staticParam  `json:"staticParameters,omitempty"`
	Timeout           string         `json:"timeout,omitempty"`
	Client            map[string]any `json:"client"`
}

type dynamicParam struct {
	Name     string      `json:"name"`
	Location string      `json:"location"`
	Schema   paramSchema `json:"schema"`
	Required bool        `json:"required"`
}

type staticParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type paramSchema struct {
	Type        string   `json:"type"`
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description"`
}

const paramLocationBody = "PARAMETER_LOCATION_BODY"

func bodyParam(name, description string, required bool) dynamicParam {
	return dynamicParam{
		Name:     name,
		Location: paramLocationBody,
		Schema:   paramSchema{Type: "string", Description: description},
		Required: required,
	}
}

func selectedTools(callerNumber string) []selectedTool {
	return []selectedTool{
		{temporaryTool{
			ModelToolName: "check_returning_user",
			Description:   "Check if the caller has previously interacted and return a personalized greeting if found.",
			StaticParameters: []staticParam{
				{Name: "caller_number", Value: callerNumber},
			},
			Timeout: "10s",
			Client:  map[string]any{},
		}},
		{temporaryTool{
			ModelToolName: "verify",
			Description:   "Verify the customer's identity before proceeding with any sensitive information or actions",
			DynamicParameters: []dynamicParam{
				bodyParam("full_name", "Customer's full name", true),
				bodyParam("date_of_birth", "DOB (YYYY-MM-DD)", true),
				bodyParam("policy_number", "Insurance policy number", true),
			},
			Timeout: "20s",
			Client:  map[string]any{},
		}},
		{temporaryTool{
			ModelToolName: "question_and_answer",
			Description:   "Get answers to customer questions about policies and services",
			DynamicParameters: []dynamicParam{
				bodyParam("question", "Question to be answered", true),
			},
			Timeout: "20s",
			Client:  map[string]any{},
		}},
		{temporaryTool{
			ModelToolName: "schedule_meeting",
			Description:   "Schedule a meeting for a customer. Returns a message indicating whether the booking was successful or not.",
			DynamicParameters: []dynamicParam{
				bodyParam("name", "Customer's name", true),
				bodyParam("email", "Customer's email", true),
				bodyParam("purpose", "Purpose of the Meeting", true),
				bodyParam("datetime", "Meeting Datetime", true),
				{
					Name:     "location",
					Location: paramLocationBody,
					Schema: paramSchema{
						Type:        "string",
						Enum:        []string{"London", "Manchester", "Brighton"},
						Description: "Meeting location",
					},
					Required: true,
				},
			},
			Timeout: "20s",
			Client:  map[string]any{},
		}},
		{temporaryTool{
			ModelToolName: "escalate_to_manager",
			Description:   "Transfer the call to a manager for handling customer complaints, escalations, or special requests",
			DynamicParameters: []dynamicParam{
				{
					Name:     "issue_type",
					Location: paramLocationBody,
					Schema: paramSchema{
						Type:        "string",
						Enum:        []string{"complaint", "refund_request", "special_accommodation", "general_escalation"},
						Description: "Type of issue requiring manager assistance",
					},
					Required: true,
				},
				bodyParam("issue_details", "Detailed description of the customer's issue", true),
				bodyParam("customer_name", "Customer's name if available", false),
			},
			Timeout: "20s",
			Client:  map[string]any{},
		}},
		{temporaryTool{
			ModelToolName: "move_to_call_summary",
			Description:   "Transition to the call summary stage when the conversation is ready to conclude",
			Timeout:       "20s",
			Client:        map[string]any{},
		}},
		{temporaryTool{
			ModelToolName: "hangUp",
			Description:   "End the call",
			Client:        map[string]any{},
		}},
	}
}
