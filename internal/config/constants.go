package config

const (
	// DefaultLedgerPath is where delivered bookmark ids and fingerprints are kept.
	DefaultLedgerPath = "./synced_bookmarks.json"

	// DefaultConfigPath is read when present; a missing file only produces a warning.
	DefaultConfigPath = "./config.yaml"

	DefaultFlomoDailyLimit = 100

	DefaultWeReadBaseURL = "https://weread.qq.com"

	// DefaultAIAPIBase is the OpenAI-compatible endpoint used when none is configured.
	DefaultAIAPIBase = "https://api.openai.com/v1"
	DefaultAIModel   = "gpt-3.5-turbo"

	DefaultTagPrompt = "请为以下摘录生成 1-3 个中文标签，以#开头，单个词或短语，贴合主题：\n" +
		"书名：{book_title}\n作者：{author}\n摘录：{highlight_text}\n" +
		"仅输出标签，用空格分隔。"

	DefaultSummaryPrompt = "请用一句中文话概括以下内容的核心观点，简洁有力：\n" +
		"书名：{book_title}\n作者：{author}\n摘录：{highlight_text}\n" +
		"仅输出一句话，不要额外说明。"
)

const (
	ProviderNone      = "none"
	ProviderLocal     = "local"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)
