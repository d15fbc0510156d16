package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Libre talks to a LibreTranslate compatible /translate endpoint.
type Libre struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewLibre(url, apiKey string, httpClient *http.Client) *Libre {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Libre{url: url, apiKey: apiKey, http: httpClient}
}

func (l *Libre) Translate(ctx context.Context, text, source string) (string, error) {
	payload, err := json.Marshal(libreRequest{
		Q:      text,
		Source: NormalizeLocale(source),
		Target: Target,
		Format: "text",
		APIKey: l.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post translate: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read translate response: %w", err)
	}

	var out libreResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unmarshal translate response: %w (raw: %s)", err, raw)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != "" {
			return "", fmt.Errorf("translate: %s", out.Error)
		}
		return "", fmt.Errorf("translate: server returned %d", resp.StatusCode)
	}

	return out.TranslatedText, nil
}
