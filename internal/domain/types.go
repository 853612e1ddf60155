package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
	PartFile  PartType = "file"
)

// ContentPart is one segment of a message. Exactly one of the payload fields
// is meaningful, selected by Type.
type ContentPart struct {
	Type PartType

	// PartText
	Text string

	// PartImage: an http(s) URL, a data: URL or a local file id.
	ImageURL string

	// PartFile: either FileID or FileData (base64 or data: URL) is set.
	FileID   string
	FileData string
	Filename string
}

type Message struct {
	Role    string        `json:"role" validate:"required,oneof=system user assistant tool developer function"`
	Name    string        `json:"name,omitempty"`
	Content []ContentPart `json:"-"`
}

type rawPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	ImageURL json.RawMessage `json:"image_url"`
	File     *struct {
		FileID   string `json:"file_id"`
		FileData string `json:"file_data"`
		Filename string `json:"filename"`
	} `json:"file"`
}

// UnmarshalJSON accepts content either as a plain string or as an array of
// typed parts. Part order is preserved.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Name    string          `json:"name"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Role = raw.Role
	m.Name = raw.Name
	m.Content = nil

	content := bytes.TrimSpace(raw.Content)
	if len(content) == 0 || bytes.Equal(content, []byte("null")) {
		return nil
	}

	if content[0] == '"' {
		var text string
		if err := json.Unmarshal(content, &text); err != nil {
			return err
		}
		m.Content = []ContentPart{{Type: PartText, Text: text}}
		return nil
	}

	var parts []rawPart
	if err := json.Unmarshal(content, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of parts: %w", err)
	}

	for i, p := range parts {
		part, err := p.toContentPart()
		if err != nil {
			return fmt.Errorf("content[%d]: %w", i, err)
		}
		m.Content = append(m.Content, part)
	}
	return nil
}

func (p rawPart) toContentPart() (ContentPart, error) {
	switch PartType(p.Type) {
	case PartText:
		return ContentPart{Type: PartText, Text: p.Text}, nil
	case PartImage:
		url, err := imageURL(p.ImageURL)
		if err != nil {
			return ContentPart{}, err
		}
		if url == "" {
			return ContentPart{}, fmt.Errorf("image_url.url is required")
		}
		return ContentPart{Type: PartImage, ImageURL: url}, nil
	case PartFile:
		if p.File == nil || (p.File.FileID == "" && p.File.FileData == "") {
			return ContentPart{}, fmt.Errorf("file.file_id or file.file_data is required")
		}
		return ContentPart{
			Type:     PartFile,
			FileID:   p.File.FileID,
			FileData: p.File.FileData,
			Filename: p.File.Filename,
		}, nil
	default:
		return ContentPart{}, fmt.Errorf("unsupported content part type %q", p.Type)
	}
}

// image_url is either {"url": "..."} or a bare string.
func imageURL(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	return obj.URL, nil
}

// Text joins the message's text parts with newlines.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Content {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ChatRequest is an incoming OpenAI chat completion request. Every top-level
// field other than model, messages and stream lands in Params untouched.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages" validate:"required,min=1,dive"`
	Stream   bool      `json:"stream"`
	Params   map[string]any
}

func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*r = ChatRequest{}
	for key, value := range fields {
		var err error
		switch key {
		case "model":
			err = json.Unmarshal(value, &r.Model)
		case "messages":
			err = json.Unmarshal(value, &r.Messages)
		case "stream":
			if !bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				err = json.Unmarshal(value, &r.Stream)
			}
		default:
			var v any
			if err = json.Unmarshal(value, &v); err == nil {
				if r.Params == nil {
					r.Params = make(map[string]any)
				}
				r.Params[key] = v
			}
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}

// VendorRequest is the body sent to a POSTECH GenAI endpoint.
type VendorRequest struct {
	Message    string         `json:"message"`
	Stream     bool           `json:"stream"`
	Files      []VendorFile   `json:"files"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type VendorFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type AssistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index        int               `json:"index"`
	Message      *AssistantMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *ErrorDetail   `json:"error,omitempty"`
}

// StreamChoice serializes FinishReason as null until the terminal chunk.
type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// StreamEvent is one decoded vendor streaming event. FinishReason is already
// in OpenAI vocabulary.
type StreamEvent struct {
	Delta        string
	Done         bool
	FinishReason string
	Usage        *Usage
}

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

type FileObject struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	URL       string `json:"url"`
}

type FileList struct {
	Object string       `json:"object"`
	Data   []FileObject `json:"data"`
}

type FileDeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Code    string  `json:"code,omitempty"`
	Param   *string `json:"param"`
}

// NewCompletionID returns an id of the form chatcmpl-<12 hex>.
func NewCompletionID() string {
	id := uuid.New()
	return "chatcmpl-" + strings.ReplaceAll(id.String(), "-", "")[:12]
}
