package gemini

// GenerateRequest is the JSON body for POST {model}:generateContent.
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// Content is one turn of a request or response.
type Content struct {
	Parts []Part `json:"parts"`
}

// Part is either a text part or an inline-data part.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData carries base64-encoded bytes inline in the request.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// GenerationConfig controls sampling. Temperature is omitted when nil.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
}

// GenerateResponse is the subset of the generateContent response the
// pipeline reads.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one generated alternative.
type Candidate struct {
	Content *Content `json:"content"`
}

// errorResponse is the body Gemini returns on failure.
type errorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Temperature returns a pointer for GenerationConfig.Temperature.
func Temperature(t float64) *float64 {
	return &t
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline-data part from already base64-encoded data.
func ImagePart(mimeType, base64Data string) Part {
	return Part{InlineData: &InlineData{MIMEType: mimeType, Data: base64Data}}
}
