package anthropic

// CachedSystem builds a single system block with an ephemeral cache
// breakpoint. Extraction and reasoning prompts are identical across
// requests, so later calls read the prompt from cache.
func CachedSystem(text string) []SystemBlock {
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: "5m"},
	}}
}
