package llm

// FirstChoice returns the first choice of resp. A nil response or an empty
// choice list is reported as ErrMalformedResponse.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, &Error{Code: ErrMalformedResponse, Message: "nil response"}
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, &Error{
			Code:     ErrMalformedResponse,
			Message:  "response carries no choices",
			Provider: resp.Provider,
		}
	}
	return resp.Choices[0], nil
}

// TotalTokens 返回响应的 token 用量；后端只给出分项时按分项求和。
func TotalTokens(resp *ChatResponse) int {
	if resp == nil {
		return 0
	}
	if resp.Usage.TotalTokens > 0 {
		return resp.Usage.TotalTokens
	}
	return resp.Usage.PromptTokens + resp.Usage.CompletionTokens
}
