package liveserver

// Message represents an outbound WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MessageType constants
const (
	TypeTradeEvent = "trade_event"
	TypePortfolio  = "portfolio"
	TypePosition   = "position"
	TypeSnapshot   = "snapshot"
)

// NewMessage - Helper function to create a Message
func NewMessage(msgType string, data interface{}) Message {
	return Message{
		Type: msgType,
		Data: data,
	}
}

// NewTradeEventMessage - Helper to create typed messages
func NewTradeEventMessage(data interface{}) Message {
	return NewMessage(TypeTradeEvent, data)
}

// NewPortfolioMessage - Helper to create typed messages
func NewPortfolioMessage(data interface{}) Message {
	return NewMessage(TypePortfolio, data)
}

// NewPositionMessage - Helper to create typed messages
func NewPositionMessage(data interface{}) Message {
	return NewMessage(TypePosition, data)
}

// NewSnapshotMessage - Helper to create typed messages
func NewSnapshotMessage(data interface{}) Message {
	return NewMessage(TypeSnapshot, data)
}
