package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	sharedConfig "github.com/codedrop-io/codedrop/internal/shared/config"
)

const (
	defaultAPIBaseURL = "https://api.telegram.org"
	maxMessageLength  = 4096
)

// BotService provides the Telegram Bot API operations used for notifications.
type BotService struct {
	httpClient *http.Client
	baseURL    string
}

// NewBotService creates a new Telegram bot service
func NewBotService(config sharedConfig.TelegramConfig) *BotService {
	apiBase := strings.TrimRight(config.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}

	return &BotService{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: fmt.Sprintf("%s/bot%s", apiBase, config.BotToken),
	}
}

// SendMessage sends an HTML formatted message to a chat. Messages longer than
// Telegram's limit are sent as several consecutive messages.
func (s *BotService) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		body := map[string]any{
			"chat_id":                  chatID,
			"text":                     chunk,
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		}
		if err := s.makeRequest(ctx, "sendMessage", body); err != nil {
			return err
		}
	}
	return nil
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

func (s *BotService) makeRequest(ctx context.Context, method string, body map[string]any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+method, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.OK {
		apiErr := &APIError{
			ErrorCode:   result.ErrorCode,
			Description: result.Description,
		}
		if apiErr.ErrorCode == 0 {
			apiErr.ErrorCode = resp.StatusCode
		}
		if result.Parameters != nil {
			apiErr.RetryAfter = result.Parameters.RetryAfter
		}
		return apiErr
	}

	return nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring line
// boundaries.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		cut := 0
		for i := 0; i < limit; i++ {
			_, size := utf8.DecodeRuneInString(text[cut:])
			cut += size
		}
		if idx := strings.LastIndex(text[:cut], "\n"); idx > 0 {
			cut = idx + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
