package model

type SubmitRequest struct {
	// 非空时覆盖暂存的输入
	Message *string `json:"message"`
}

type InputRequest struct {
	Text string `json:"text"`
}
