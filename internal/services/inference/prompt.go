package inference

// Analysis prompts per media kind and verbosity. The long profile produces a
// thorough accessibility description; the short profile a one-paragraph
// summary.

const imagePromptLong = `Describe this image in detail for someone who cannot see it.
Cover the overall scene, every person and object of note, any visible text
transcribed exactly, colors, and the mood the image conveys. Write in plain
prose without headings or lists.`

const imagePromptShort = `Describe this image in one short paragraph for someone
who cannot see it. Mention only the most important subjects and any visible
text.`

const videoPromptLong = `Describe this video in detail for someone who cannot watch it.
Narrate the events in order, describe people, places and on-screen text, and
summarize any spoken dialogue. Write in plain prose without headings or lists.`

const videoPromptShort = `Summarize this video in one short paragraph for someone
who cannot watch it. Mention the main events and any essential dialogue.`

const audioPromptLong = `Transcribe this audio. Include speaker changes when they
are distinguishable and describe relevant non-speech sounds in brackets.`

// PromptFor returns the analysis prompt for a media mime type and verbosity
// profile. Unknown mime types fall back to the image prompts.
func PromptFor(mimeType, verbosity string) string {
	kind := kindFromMime(mimeType)
	short := verbosity == "short"
	switch kind {
	case "video":
		if short {
			return videoPromptShort
		}
		return videoPromptLong
	case "audio":
		return audioPromptLong
	default:
		if short {
			return imagePromptShort
		}
		return imagePromptLong
	}
}

func kindFromMime(mimeType string) string {
	switch {
	case len(mimeType) >= 5 && mimeType[:5] == "video":
		return "video"
	case len(mimeType) >= 5 && mimeType[:5] == "audio":
		return "audio"
	default:
		return "image"
	}
}
