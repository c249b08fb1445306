package dto

// APIResponse is the envelope of every successful response.
type APIResponse struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

// APIError is the envelope of every failed response. Errors holds one
// {field: message} object per invalid field.
type APIError struct {
	StatusCode int                 `json:"statusCode"`
	Message    string              `json:"message"`
	Success    bool                `json:"success"`
	Errors     []map[string]string `json:"errors"`
}

func NewAPIResponse(status int, data interface{}, message string) APIResponse {
	return APIResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < 400,
	}
}

func NewAPIError(status int, message string, errors []map[string]string) APIError {
	if errors == nil {
		errors = []map[string]string{}
	}
	return APIError{
		StatusCode: status,
		Message:    message,
		Success:    false,
		Errors:     errors,
	}
}

// UserSummary is the public view of a user embedded in other resources.
type UserSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}
