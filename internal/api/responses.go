package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// RedirectResponse carries a gateway hosted-checkout URL back to the client.
type RedirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}
