package constant

const (
	// ChatSystemInstruction is sent with every streamed turn.
	ChatSystemInstruction = "Respond *only* with the plain text answer. Do not include pinyin, romanization, or automatic translations unless the user explicitly asks for them."

	// TurnFailedMessage replaces the placeholder when a stream fails.
	TurnFailedMessage = "Sorry, something went wrong while generating a response. Please try again."

	TranslationSystemPrompt = "Translate the following text to %s. Respond ONLY with the translated text, and nothing else."
	TranslationFailedText   = "Translation failed."
	TranslationTargetEN     = "English"
	TranslationTargetZH     = "Chinese"

	SummaryPrompt     = "Please provide a concise summary of our conversation so far, as a short list of bullet points."
	SummaryFailedText = "Sorry, the conversation could not be summarized."
)

// RegenerateFailedMessage replaces the placeholder when a regeneration stream fails.
const RegenerateFailedMessage = "Sorry, something went wrong while regenerating the response. Please try again."
