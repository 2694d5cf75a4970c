package resolver

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmgateway/llmgateway/catalog"
)

func testRegistry() *catalog.Registry {
	return catalog.NewRegistry(
		[]catalog.Provider{
			{ID: "anthropic", Name: "Anthropic", Format: catalog.FormatAnthropic},
			{ID: "together.ai", Name: "Together AI", Format: catalog.FormatOpenAI},
			{ID: "groq", Name: "Groq", Format: catalog.FormatOpenAI},
		},
		[]catalog.Model{
			{
				ID:     "claude-3-5-sonnet-20241022",
				Family: "claude",
				Providers: []catalog.Mapping{
					{ProviderID: "anthropic", ModelName: "claude-3-5-sonnet-20241022"},
				},
			},
			{
				ID:     "llama-3.1-8b-instruct",
				Family: "llama",
				Providers: []catalog.Mapping{
					{ProviderID: "together.ai", ModelName: "Meta-Llama-3.1-8B-Instruct-Turbo"},
					{ProviderID: "groq", ModelName: "llama-3.1-8b-instant"},
				},
			},
		},
	)
}

func TestParseModelInput_Sentinels(t *testing.T) {
	reg := testRegistry()
	for _, input := range []string{"auto", "custom"} {
		res, apiErr := ParseModelInput(reg, input)
		require.Nil(t, apiErr)
		require.Equal(t, input, res.RequestedModel)
		require.Equal(t, catalog.GatewayProviderID, res.RequestedProvider)
	}
}

func TestParseModelInput_KnownProviderPrefix(t *testing.T) {
	reg := testRegistry()
	res, apiErr := ParseModelInput(reg, "anthropic/claude-3-5-sonnet-20241022")
	require.Nil(t, apiErr)
	require.Equal(t, "anthropic", res.RequestedProvider)
	require.Equal(t, "claude-3-5-sonnet-20241022", res.RequestedModel)
}

func TestParseModelInput_PrefixWithMappingName(t *testing.T) {
	reg := testRegistry()
	res, apiErr := ParseModelInput(reg, "together.ai/Meta-Llama-3.1-8B-Instruct-Turbo")
	require.Nil(t, apiErr)
	require.Equal(t, "together.ai", res.RequestedProvider)
	require.Equal(t, "Meta-Llama-3.1-8B-Instruct-Turbo", res.RequestedModel)
}

func TestParseModelInput_PrefixResolvesCanonicalMappingName(t *testing.T) {
	reg := testRegistry()
	// Root model id with a provider prefix resolves to that provider's own name.
	res, apiErr := ParseModelInput(reg, "groq/llama-3.1-8b-instruct")
	require.Nil(t, apiErr)
	require.Equal(t, "groq", res.RequestedProvider)
	require.Equal(t, "llama-3.1-8b-instant", res.RequestedModel)
}

func TestParseModelInput_RejectsAnotherProvidersAlias(t *testing.T) {
	reg := testRegistry()
	// groq serves the model, but only under its own name; together.ai's alias
	// must not resolve through a groq prefix.
	_, apiErr := ParseModelInput(reg, "groq/Meta-Llama-3.1-8B-Instruct-Turbo")
	require.NotNil(t, apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Error.Message, "unsupported model")
}

func TestParseModelInput_ProviderDoesNotSupportModel(t *testing.T) {
	reg := testRegistry()
	_, apiErr := ParseModelInput(reg, "anthropic/llama-3.1-8b-instruct")
	require.NotNil(t, apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Error.Message, "does not support")
}

func TestParseModelInput_CustomPrefix(t *testing.T) {
	reg := testRegistry()
	res, apiErr := ParseModelInput(reg, "myproxy/totally-custom-model/with-slash")
	require.Nil(t, apiErr)
	require.Equal(t, catalog.CustomProviderID, res.RequestedProvider)
	require.Equal(t, "myproxy", res.CustomProviderName)
	require.Equal(t, "totally-custom-model/with-slash", res.RequestedModel)
}

func TestParseModelInput_BareModelID(t *testing.T) {
	reg := testRegistry()
	res, apiErr := ParseModelInput(reg, "llama-3.1-8b-instruct")
	require.Nil(t, apiErr)
	require.Empty(t, res.RequestedProvider)
	require.Equal(t, "llama-3.1-8b-instruct", res.RequestedModel)
}

func TestParseModelInput_BareMappingNameRequiresPrefix(t *testing.T) {
	reg := testRegistry()
	_, apiErr := ParseModelInput(reg, "Meta-Llama-3.1-8B-Instruct-Turbo")
	require.NotNil(t, apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Error.Message,
		"must be requested with a provider prefix. Use the format: together.ai/llama-3.1-8b-instruct")
}

func TestParseModelInput_Unknown(t *testing.T) {
	reg := testRegistry()
	_, apiErr := ParseModelInput(reg, "no-such-model")
	require.NotNil(t, apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Error.Message, "unsupported model")
}
