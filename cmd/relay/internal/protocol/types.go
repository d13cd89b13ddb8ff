package protocol

const (
	ActionSymbols = "symbols"
	ActionPrice   = "price"
)

const (
	TypeSymbols = "symbols"
	TypePrice   = "price"
	TypeError   = "error"
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

type RequestPayload struct {
	Symbols []string `json:"symbols"`
}

// WSResponse answers a WSRequest. Price pushes are not wrapped; they go out
// as bare PriceRecord objects.
type WSResponse struct {
	Type    string      `json:"type"`         // "symbols", "price", "error"
	ID      string      `json:"id,omitempty"` // Matches request ID
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
