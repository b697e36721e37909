package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// MockAIClient answers deterministically without touching the network.
// Used for offline mode (--mock) and in tests.
type MockAIClient struct {
	Calls int

	// ConverseErr / ImageErr force a fault from the next call.
	ConverseErr error
	ImageErr    error
}

func NewMockAIClient() *MockAIClient {
	return &MockAIClient{}
}

func (c *MockAIClient) Converse(_ context.Context, history []Message, newMessage, systemInstruction, credential, modelID string) (string, error) {
	c.Calls++
	if c.ConverseErr != nil {
		return "", c.ConverseErr
	}
	if strings.TrimSpace(credential) == "" {
		return "", ErrAuthFault
	}
	return fmt.Sprintf("(%s) I heard: %s [%d prior messages]", modelID, strings.TrimSpace(newMessage), len(history)), nil
}

func (c *MockAIClient) GenerateImage(_ context.Context, prompt, credential string) (string, error) {
	c.Calls++
	if c.ImageErr != nil {
		return "", c.ImageErr
	}
	if strings.TrimSpace(credential) == "" {
		return "", ErrAuthFault
	}
	return base64.StdEncoding.EncodeToString([]byte("mock image: " + prompt)), nil
}
