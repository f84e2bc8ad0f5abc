package http

type (
	// CreateSessionRequest struct - HTTP request DTO
	CreateSessionRequest struct {
		Name           *string                `json:"name" validate:"omitempty,max=200" form:"name"`
		WorkingContext *string                `json:"working_context" validate:"omitempty,max=1024" form:"working_context"`
		Options        map[string]interface{} `json:"options" form:"-"`
	}

	// QueryRequest struct - HTTP request DTO for a streaming query
	QueryRequest struct {
		SessionID string `json:"session_id" form:"session_id"`
		Query     string `json:"query" validate:"required,min=1" form:"query"`
	}

	// StatusQuery struct
	StatusQuery struct {
		Check bool `json:"check" query:"check"`
	}
)
