package event

// TopicRegistration 登记事件主题
const TopicRegistration = "station_events_registration"

// AccountRegisteredEvent 智能账户登记完成
// Topic: station_events_registration, Key: actor
type AccountRegisteredEvent struct {
	Actor   string `json:"actor"`
	Machine string `json:"machine"`
	TxHash  string `json:"tx_hash"`
}
