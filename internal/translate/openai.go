package translate

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"
)

const systemPrompt = `
You are a translation engine for a voice assistant.
Translate the user's utterance into English.

RULES:
1. Output ONLY the translation. No quotes, no markdown, no explanations.
2. Keep names, numbers and abbreviations as spoken.
3. If the text is already English, repeat it unchanged.
`

// OpenAI translates through a chat completion model.
type OpenAI struct {
	client openai.Client
	model  openai.ChatModel
}

func NewOpenAI(client openai.Client, model string) *OpenAI {
	m := openai.ChatModel(model)
	if m == "" {
		m = openai.ChatModelGPT5Nano
	}
	return &OpenAI{client: client, model: m}
}

func (o *OpenAI) Translate(ctx context.Context, text, source string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf("Source language: %s\n\n%s", NormalizeLocale(source), text)),
		},
		Model: o.model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}

	return content, nil
}
