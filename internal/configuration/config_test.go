package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from the caller's environment and working directory.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "LLM_PROVIDER", "OPENAI_BASE_URL", "DEBUG"} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Path)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 120*time.Second, cfg.LLM.RequestTimeout.Duration)
	assert.Equal(t, DefaultSystemPrompt, cfg.Agent.SystemPrompt)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout.Duration)
	assert.EqualValues(t, 10<<20, cfg.Fetch.MaxBodyBytes)
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[llm]
provider = "anthropic"
anthropic_api_key = "sk-ant-file"
anthropic_model = "claude-test"
max_retries = 1
request_timeout = "45s"

[agent]
system_prompt = "Answer in French."

[fetch]
timeout = "5s"
user_agent = "custom-agent"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-ant-file", cfg.LLM.AnthropicKey)
	assert.Equal(t, "claude-test", cfg.LLM.AnthropicModel)
	assert.Equal(t, 1, cfg.LLM.MaxRetries)
	assert.Equal(t, 45*time.Second, cfg.LLM.RequestTimeout.Duration)
	assert.Equal(t, "Answer in French.", cfg.Agent.SystemPrompt)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout.Duration)
	assert.Equal(t, "custom-agent", cfg.Fetch.UserAgent)
	// untouched keys keep their defaults
	assert.EqualValues(t, 10<<20, cfg.Fetch.MaxBodyBytes)
}

func TestLoadConfig_SearchPath(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile("config.toml", []byte("[llm]\nprovider = \"ollama\"\n"), 0o600))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "./config.toml", cfg.Path)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[llm]\nprovider = \"anthropic\"\nopenai_api_key = \"from-file\"\n")
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.OpenAIKey)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:9999/v1", cfg.LLM.BaseURL)
	assert.True(t, cfg.Agent.Debug)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("GEMINI_API_KEY")
	t.Cleanup(func() { os.Unsetenv("GEMINI_API_KEY") })
	require.NoError(t, os.WriteFile(".env", []byte("GEMINI_API_KEY=from-dotenv\n"), 0o600))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.GeminiKey)
}

func TestLoadConfig_Errors(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "[llm\nprovider ="))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "[fetch]\ntimeout = \"soon\"\n"))
	assert.Error(t, err)
}
