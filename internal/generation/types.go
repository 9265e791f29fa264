// ABOUTME: Request and response types for the generateContent REST endpoint
// ABOUTME: Includes the fixed-path reply extraction used by the session controller

package generation

// Request is the body posted to generateContent.
type Request struct {
	Contents []Content `json:"contents"`
}

// Content is a single turn of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part holds one piece of text.
type Part struct {
	Text string `json:"text"`
}

// Response is the decoded generateContent reply.
type Response struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

// Candidate is one generated alternative.
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// UsageMetadata reports token consumption for a request.
type UsageMetadata struct {
	PromptTokenCount     int32 `json:"promptTokenCount"`
	CandidatesTokenCount int32 `json:"candidatesTokenCount"`
	TotalTokenCount      int32 `json:"totalTokenCount"`
}

// ReplyText returns the text of the first part of the first candidate.
// ok is false when any element on that path is missing or the text is empty.
func (r *Response) ReplyText() (text string, ok bool) {
	if r == nil || len(r.Candidates) == 0 {
		return "", false
	}
	content := r.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", false
	}
	text = content.Parts[0].Text
	return text, text != ""
}

// Usage returns the usage metadata, or a zero value when the service sent none.
func (r *Response) Usage() UsageMetadata {
	if r == nil || r.UsageMetadata == nil {
		return UsageMetadata{}
	}
	return *r.UsageMetadata
}

// newRequest wraps a prompt in the single-turn request body.
func newRequest(prompt string) Request {
	return Request{
		Contents: []Content{{Parts: []Part{{Text: prompt}}}},
	}
}
