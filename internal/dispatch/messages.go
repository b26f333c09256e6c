package dispatch

import (
	"golang.org/x/text/language"

	"github.com/nunotfc/amelie/internal/services"
)

// User-facing failure messages. Raw backend errors never reach a
// conversation; the submitter gets one of these per classification.

var supportedLanguages = []language.Tag{
	language.MustParse("pt-BR"),
	language.English,
}

var matcher = language.NewMatcher(supportedLanguages)

var failureMessages = map[language.Tag]map[services.Kind]string{
	supportedLanguages[0]: {
		services.KindSafetyBlocked: "Não consegui descrever esta mídia porque o conteúdo foi bloqueado pelo filtro de segurança.",
		services.KindFileExpired:   "Esta mídia expirou antes que eu conseguisse processá-la. Pode enviar de novo?",
		services.KindFileForbidden: "Não tenho mais acesso a esta mídia. Pode enviar de novo?",
		services.KindTimeout:       "O processamento desta mídia demorou demais e foi cancelado. Tente de novo com um vídeo mais curto ou um arquivo menor.",
		services.KindUnavailable:   "O serviço de descrição está indisponível no momento. Tente novamente em alguns minutos.",
		services.KindQuota:         "Atingi o limite de processamento por agora. Tente novamente em alguns minutos.",
		services.KindGeneral:       "Não consegui processar esta mídia. Pode tentar de novo?",
	},
	language.English: {
		services.KindSafetyBlocked: "I could not describe this media because the content was blocked by the safety filter.",
		services.KindFileExpired:   "This media expired before I could process it. Could you send it again?",
		services.KindFileForbidden: "I no longer have access to this media. Could you send it again?",
		services.KindTimeout:       "Processing this media took too long and was cancelled. Please try again with a shorter clip or a smaller file.",
		services.KindUnavailable:   "The description service is unavailable right now. Please try again in a few minutes.",
		services.KindQuota:         "I have hit the processing limit for now. Please try again in a few minutes.",
		services.KindGeneral:       "I could not process this media. Could you try again?",
	},
}

var progressMessages = map[language.Tag]string{
	supportedLanguages[0]: "Ainda estou processando sua mídia, só mais um momento.",
	language.English:      "Still processing your media, just a moment longer.",
}

var slowMessages = map[language.Tag]string{
	supportedLanguages[0]: "Esta mídia está demorando mais que o normal. Continuo tentando.",
	language.English:      "This media is taking longer than usual. I am still on it.",
}

// ProgressMessage returns the localized still-working notice.
func ProgressMessage(locale string) string {
	return lookupMessage(locale, progressMessages)
}

// SlowMessage returns the localized taking-longer-than-usual notice.
func SlowMessage(locale string) string {
	return lookupMessage(locale, slowMessages)
}

func lookupMessage(locale string, messages map[language.Tag]string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = supportedLanguages[0]
	}
	_, index, _ := matcher.Match(tag)
	return messages[supportedLanguages[index]]
}

// FailureMessage returns the localized message the submitter sees for a
// failure classification. Unknown locales fall back through the matcher to
// the default language.
func FailureMessage(locale string, kind services.Kind) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = supportedLanguages[0]
	}
	_, index, _ := matcher.Match(tag)
	messages := failureMessages[supportedLanguages[index]]
	if message, ok := messages[kind]; ok {
		return message
	}
	return messages[services.KindGeneral]
}
