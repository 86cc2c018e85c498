package types

// SendRequest is the body of POST /send-request.
type SendRequest struct {
	Info  DeviceInfo              `json:"info"`
	Files map[string]FileMetadata `json:"files"`
}

// SendRequestResponse maps every accepted file id to its upload token.
type SendRequestResponse map[string]string

// MessageResponse is the terse error body of the wire protocol.
type MessageResponse struct {
	Message string `json:"message"`
}

// DecisionRequest is the body of the local decide endpoint. A nil Files map declines.
type DecisionRequest struct {
	Files map[string]string `json:"files"`
}

// UserSendRequest starts an outgoing transfer from the local control API.
type UserSendRequest struct {
	Target Device      `json:"target"`
	Files  []LocalFile `json:"files"`
}
