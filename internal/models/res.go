package models

import "github.com/joshua-takyi/staybook/internal/apperrors"

type ApiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Page    int         `json:"page,omitempty"`
	Limit   int         `json:"limit,omitempty"`
	Total   int         `json:"total,omitempty"`
	Pages   int         `json:"pages,omitempty"`
}

func SuccessResponse(data interface{}, message string) ApiResponse {
	return ApiResponse{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func ErrorResponse(err string) ApiResponse {
	return ApiResponse{
		Success: false,
		Error:   err,
	}
}

// AppErrorResponse renders err with its stable code and a message that is
// safe to send to the client.
func AppErrorResponse(err error) ApiResponse {
	res := ErrorResponse(apperrors.SafeMessage(err))
	if appErr, ok := apperrors.As(err); ok {
		res.Code = string(appErr.Code)
	}
	return res
}

func PaginatedResponse(data interface{}, page, limit, total int) ApiResponse {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return ApiResponse{
		Success: true,
		Data:    data,
		Page:    page,
		Limit:   limit,
		Total:   total,
		Pages:   pages,
	}
}
