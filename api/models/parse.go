package models

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/moyoez/localsend-session/types"
)

// ParseSendRequest parses the body of POST /send-request.
func ParseSendRequest(body []byte) (*types.SendRequest, error) {
	var request types.SendRequest
	if err := sonic.Unmarshal(body, &request); err != nil {
		return nil, fmt.Errorf("%w: failed to parse send-request: %v", types.ErrInvalidRequest, err)
	}
	return &request, nil
}

// ParseDecisionRequest parses the body of the local decide endpoint.
func ParseDecisionRequest(body []byte) (*types.DecisionRequest, error) {
	var request types.DecisionRequest
	if err := sonic.Unmarshal(body, &request); err != nil {
		return nil, fmt.Errorf("%w: failed to parse decision: %v", types.ErrInvalidRequest, err)
	}
	return &request, nil
}

// ParseUserSendRequest parses the body of the local send endpoint.
func ParseUserSendRequest(body []byte) (*types.UserSendRequest, error) {
	var request types.UserSendRequest
	if err := sonic.Unmarshal(body, &request); err != nil {
		return nil, fmt.Errorf("%w: failed to parse send request: %v", types.ErrInvalidRequest, err)
	}
	return &request, nil
}
