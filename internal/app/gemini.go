package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AIClient is the external conversational collaborator. Converse returns
// the model's reply text; GenerateImage returns a base64 image payload.
// Both fail with ErrAuthFault on an empty or rejected credential,
// ErrServiceFault on transport or service errors, and GenerateImage with
// ErrNoContent when the service answers without an image.
type AIClient interface {
	Converse(ctx context.Context, history []Message, newMessage, systemInstruction, credential, modelID string) (string, error)
	GenerateImage(ctx context.Context, prompt, credential string) (string, error)
}

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultImageModelID  = "imagen-3.0-generate-002"
)

type GeminiClient struct {
	BaseURL      string
	ImageModelID string
	HTTP         *http.Client
}

func NewGeminiClient(baseURL string) *GeminiClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiClient{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ImageModelID: defaultImageModelID,
		HTTP:         &http.Client{Timeout: 120 * time.Second},
	}
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateContentRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type predictRequest struct {
	Instances []struct {
		Prompt string `json:"prompt"`
	} `json:"instances"`
	Parameters struct {
		SampleCount int `json:"sampleCount"`
	} `json:"parameters"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"predictions"`
	Error *geminiError `json:"error,omitempty"`
}

func (c *GeminiClient) Converse(ctx context.Context, history []Message, newMessage, systemInstruction, credential, modelID string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", ErrAuthFault
	}

	reqBody := generateContentRequest{
		Contents: make([]geminiContent, 0, len(history)+1),
	}
	if strings.TrimSpace(systemInstruction) != "" {
		reqBody.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: systemInstruction}},
		}
	}
	for _, m := range history {
		// Image-only messages carry no text worth replaying upstream.
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		reqBody.Contents = append(reqBody.Contents, geminiContent{
			Role:  m.Role,
			Parts: []geminiPart{{Text: m.Text}},
		})
	}
	reqBody.Contents = append(reqBody.Contents, geminiContent{
		Role:  RoleUser,
		Parts: []geminiPart{{Text: newMessage}},
	})

	url := fmt.Sprintf("%s/models/%s:generateContent", c.BaseURL, modelID)
	body, err := c.post(ctx, url, credential, reqBody)
	if err != nil {
		return "", err
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrServiceFault, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty candidate list", ErrServiceFault)
	}
	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (c *GeminiClient) GenerateImage(ctx context.Context, prompt, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", ErrAuthFault
	}

	var reqBody predictRequest
	reqBody.Instances = append(reqBody.Instances, struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt})
	reqBody.Parameters.SampleCount = 1

	url := fmt.Sprintf("%s/models/%s:predict", c.BaseURL, c.ImageModelID)
	body, err := c.post(ctx, url, credential, reqBody)
	if err != nil {
		return "", err
	}

	var parsed predictResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrServiceFault, err)
	}
	if len(parsed.Predictions) == 0 || parsed.Predictions[0].BytesBase64Encoded == "" {
		return "", ErrNoContent
	}
	return parsed.Predictions[0].BytesBase64Encoded, nil
}

func (c *GeminiClient) post(ctx context.Context, url, credential string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceFault, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceFault, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-goog-api-key", credential)

	resp, err := c.HTTP.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceFault, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrServiceFault, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", ErrAuthFault, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		var errResp struct {
			Error *geminiError `json:"error"`
		}
		_ = json.Unmarshal(body, &errResp)
		if errResp.Error != nil {
			if errResp.Error.Status == "PERMISSION_DENIED" || errResp.Error.Status == "UNAUTHENTICATED" {
				return nil, fmt.Errorf("%w: %s", ErrAuthFault, errResp.Error.Message)
			}
			return nil, fmt.Errorf("%w: status %d: %s", ErrServiceFault, resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("%w: status %d", ErrServiceFault, resp.StatusCode)
	}
	return body, nil
}
