package conversation

// Texts 面向用户的文案，可按语言替换
type Texts struct {
	Greeting           string
	AttachedLabel      string
	FailurePrefix      string
	ServiceUnavailable string
	UnsupportedType    string
	// 含一个 %d，单位 MB
	FileTooLarge string
}

var locales = map[string]Texts{
	"vi": {
		Greeting:           "Xin chào! Tôi là Trợ lý Thiết kế GPT (GEM) cá nhân hóa. Hãy cho tôi biết ý tưởng về GPT bạn muốn xây dựng, hoặc đính kèm một tệp tài liệu để bắt đầu.",
		AttachedLabel:      "Tệp đính kèm:",
		FailurePrefix:      "Đã có lỗi xảy ra. Vui lòng thử lại. Lỗi: ",
		ServiceUnavailable: "Không thể kết nối đến dịch vụ AI. Vui lòng thử lại sau.",
		UnsupportedType:    "Định dạng tệp không được hỗ trợ. Vui lòng chọn .pdf, .doc, .docx, hoặc .txt.",
		FileTooLarge:       "Kích thước tệp không được vượt quá %dMB.",
	},
	"en": {
		Greeting:           "Hello! I am your personal GPT (GEM) design assistant. Tell me about the GPT you want to build, or attach a document to get started.",
		AttachedLabel:      "Attached files:",
		FailurePrefix:      "Something went wrong. Please try again. Error: ",
		ServiceUnavailable: "Cannot reach the AI service. Please try again later.",
		UnsupportedType:    "Unsupported file type. Please choose a .pdf, .doc, .docx or .txt file.",
		FileTooLarge:       "Files must not be larger than %dMB.",
	},
}

// TextsFor 未知语言回退到越南语
func TextsFor(locale string) Texts {
	if t, ok := locales[locale]; ok {
		return t
	}
	return locales["vi"]
}
