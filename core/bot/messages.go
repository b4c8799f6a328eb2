package bot

// User-facing texts.
const (
	msgUnauthorized = "Unauthorized: %d"
	msgAdminsOnly   = "Nur für Admins"
	msgDone         = "Erledigt"
	msgCancelled    = "Abgebrochen"
	msgInfo         = "Version: %s\nAm Leben seit: %s (%s)\nNachrichten verarbeitet: %d\n"

	msgMenuPrompt   = "Aktion?"
	msgMenuRetry    = "Bitte wähle eine der folgenden Möglichkeiten"
	msgEditPrompt   = "Inhalt der Config Datei eingeben!\nBenutze /cancel zum Abbrechen."
	msgEditInvalid  = "Ungültige config: %v!\nConfig erneut eingeben. Benutze /cancel zum Abbrechen."
	msgReloadFailed = "Neuladen fehlgeschlagen: %v"

	btnContent = "Inhalt"
	btnReload  = "Neuladen"
	btnEdit    = "Bearbeiten"
	btnCancel  = "Abbrechen"
)

// maxMessageLen is the Bot API limit for a single text message, in runes.
const maxMessageLen = 4096

// chunkText splits text into pieces that fit one message, preferring line breaks.
func chunkText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
