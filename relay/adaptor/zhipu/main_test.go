package zhipu

import (
	"testing"

	"github.com/stretchr/testify/require"

	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

func TestConvertRequest_PromptFromLastUserMessage(t *testing.T) {
	req := &relaymodel.GeneralOpenAIRequest{
		Messages: []relaymodel.Message{
			{Role: "user", Content: "first prompt"},
			{Role: "assistant", Content: "here you go"},
			{Role: "user", Content: "a red bicycle"},
		},
		ImageConfig: &relaymodel.ImageConfig{Size: "1K"},
		N:           2,
	}
	out := ConvertRequest(req, "cogview-4")
	require.Equal(t, "cogview-4", out.Model)
	require.Equal(t, "a red bicycle", out.Prompt)
	require.Equal(t, "1K", out.Size)
	require.Equal(t, 2, out.N)
}

func TestParseResponse_ImageURLs(t *testing.T) {
	body := `{"created": 1700000000, "data": [
		{"url": "https://cogview.example.com/a.png"},
		{"url": "https://cogview.example.com/b.png"}
	]}`
	canonical, err := ParseResponse([]byte(body))
	require.NoError(t, err)
	require.Equal(t, "Generated image", canonical.Content)
	require.Equal(t, []string{
		"https://cogview.example.com/a.png",
		"https://cogview.example.com/b.png",
	}, canonical.Images)
	require.Equal(t, "stop", canonical.FinishReason)
	require.Zero(t, canonical.TotalTokens)
}

func TestParseResponse_Errors(t *testing.T) {
	_, err := ParseResponse([]byte(`{"error": {"message": "sensitive prompt", "code": "1301"}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "sensitive prompt")

	_, err = ParseResponse([]byte(`{"data": []}`))
	require.Error(t, err)
}
