package request

// CreateAccountRequest 为 actor 部署智能账户
type CreateAccountRequest struct {
	Actor string `json:"actor" binding:"required,eth_addr"`
}

type TransferStationBalanceRequest struct {
	NewStation string `json:"new_station" binding:"required,eth_addr"`
}

// StorageTxRequest 写存储条目
// Machine 只在智能账户接口中使用
type StorageTxRequest struct {
	Machine  string `json:"machine" binding:"omitempty,eth_addr"`
	Email    string `json:"email" binding:"required,email"`
	ItemType string `json:"item_type" binding:"required,max=64"`
	Item     string `json:"item" binding:"required"`
	Tag      string `json:"tag" binding:"required"`
}

// DIDTxRequest 写文档属性
// 智能账户接口中 Subject 为智能账户地址，Actor 写入 #owner
type DIDTxRequest struct {
	Subject string `json:"subject" binding:"required,eth_addr"`
	Actor   string `json:"actor" binding:"omitempty,eth_addr"`
	Email   string `json:"email" binding:"required,email"`
	Company string `json:"company" binding:"required"`
	Tag     string `json:"tag" binding:"required"`
}

// ExecuteTxRequest 执行 Owner 已签名的调用
type ExecuteTxRequest struct {
	Target         string `json:"target" binding:"required,eth_addr"`
	Calldata       string `json:"calldata" binding:"required,hex_bytes"`
	Nonce          string `json:"nonce" binding:"required,numeric"`
	OwnerSignature string `json:"owner_signature" binding:"required,sig65"`
}

// ExecuteMachineTxRequest 执行双签的智能账户调用
type ExecuteMachineTxRequest struct {
	Machine          string `json:"machine" binding:"required,eth_addr"`
	Target           string `json:"target" binding:"required,eth_addr"`
	Calldata         string `json:"calldata" binding:"required,hex_bytes"`
	Nonce            string `json:"nonce" binding:"required,numeric"`
	OwnerSignature   string `json:"owner_signature" binding:"required,sig65"`
	MachineSignature string `json:"machine_signature" binding:"required,sig65"`
}

type BatchEntryRequest struct {
	Machine          string `json:"machine" binding:"required,eth_addr"`
	Target           string `json:"target" binding:"required,eth_addr"`
	Calldata         string `json:"calldata" binding:"required,hex_bytes"`
	Nonce            string `json:"nonce" binding:"required,numeric"`
	MachineSignature string `json:"machine_signature" binding:"required,sig65"`
}

type ExecuteBatchRequest struct {
	Entries []BatchEntryRequest `json:"entries" binding:"required,min=1,dive"`
}

type MachineTransferRequest struct {
	Machine   string `json:"machine" binding:"required,eth_addr"`
	Recipient string `json:"recipient" binding:"required,eth_addr"`
}

// ExecuteMachineTransferRequest 签名缺省时由服务端准备并代签 (需要本地设备私钥)
type ExecuteMachineTransferRequest struct {
	Machine          string `json:"machine" binding:"required,eth_addr"`
	Recipient        string `json:"recipient" binding:"required,eth_addr"`
	Nonce            string `json:"nonce" binding:"omitempty,numeric"`
	OwnerSignature   string `json:"owner_signature" binding:"omitempty,sig65"`
	MachineSignature string `json:"machine_signature" binding:"omitempty,sig65"`
}

// VerifyDocumentRequest Document 为编码后文档的 hex
type VerifyDocumentRequest struct {
	Document string `json:"document" binding:"required,hex_bytes"`
}

// ResolveReferenceRequest Reference 形如 did:peaq:<address>/<name>
type ResolveReferenceRequest struct {
	Reference string `json:"reference" binding:"required"`
}

// RemoteVerifyRequest 远端校验
type RemoteVerifyRequest struct {
	Address       string `json:"address" binding:"required,eth_addr"`
	Tag           string `json:"tag" binding:"required"`
	ExpectedCount *int   `json:"expected_count" binding:"omitempty,min=0"`
}
