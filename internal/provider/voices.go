package provider

import "github.com/book-expert/audiobook-service/internal/core"

// Voice describes one selectable narration voice.
type Voice struct {
	ID       string
	Name     string
	Category string
	Gender   string
}

// Default voices per provider.
const (
	DefaultGeminiVoice = "Puck"
	DefaultPiperVoice  = "en_US-lessac-medium"
)

// geminiVoices is the prebuilt voice catalog exposed by the Gemini TTS
// models.
var geminiVoices = []Voice{
	{ID: "Aoede", Name: "Aoede (conversational)", Category: "Feminine conversational", Gender: "F"},
	{ID: "Kore", Name: "Kore (energetic)", Category: "Feminine conversational", Gender: "F"},
	{ID: "Leda", Name: "Leda (professional)", Category: "Feminine conversational", Gender: "F"},
	{ID: "Zephyr", Name: "Zephyr (bright)", Category: "Feminine conversational", Gender: "F"},
	{ID: "Callirrhoe", Name: "Callirrhoe (professional)", Category: "Feminine specialized", Gender: "F"},
	{ID: "Despina", Name: "Despina (warm)", Category: "Feminine specialized", Gender: "F"},
	{ID: "Erinome", Name: "Erinome (articulate)", Category: "Feminine specialized", Gender: "F"},
	{ID: "Sulafat", Name: "Sulafat (persuasive)", Category: "Feminine specialized", Gender: "F"},
	{ID: "Vindemiatrix", Name: "Vindemiatrix (calm)", Category: "Feminine specialized", Gender: "F"},
	{ID: "Puck", Name: "Puck (upbeat)", Category: "Masculine principal", Gender: "M"},
	{ID: "Charon", Name: "Charon (smooth)", Category: "Masculine principal", Gender: "M"},
	{ID: "Orus", Name: "Orus (deep)", Category: "Masculine principal", Gender: "M"},
	{ID: "Iapetus", Name: "Iapetus (clear)", Category: "Masculine principal", Gender: "M"},
	{ID: "Umbriel", Name: "Umbriel (seasoned)", Category: "Masculine principal", Gender: "M"},
	{ID: "Achernar", Name: "Achernar (friendly)", Category: "Masculine specialized", Gender: "M"},
	{ID: "Enceladus", Name: "Enceladus (enthusiastic)", Category: "Masculine specialized", Gender: "M"},
	{ID: "Fenrir", Name: "Fenrir (natural)", Category: "Masculine specialized", Gender: "M"},
	{ID: "Rasalgethi", Name: "Rasalgethi (conversational)", Category: "Masculine specialized", Gender: "M"},
	{ID: "Schedar", Name: "Schedar (casual)", Category: "Masculine specialized", Gender: "M"},
}

// piperVoices lists the locally distributed piper models the service ships
// documentation for; any model file on disk works as well.
var piperVoices = []Voice{
	{ID: "en_US-lessac-medium", Name: "Lessac (US English)", Category: "Local", Gender: "F"},
	{ID: "en_US-ryan-high", Name: "Ryan (US English)", Category: "Local", Gender: "M"},
	{ID: "en_GB-alan-medium", Name: "Alan (British English)", Category: "Local", Gender: "M"},
	{ID: "pt_BR-faber-medium", Name: "Faber (Brazilian Portuguese)", Category: "Local", Gender: "M"},
	{ID: "de_DE-thorsten-high", Name: "Thorsten (German)", Category: "Local", Gender: "M"},
}

// Voices returns the catalog for one provider.
func Voices(id core.ProviderID) []Voice {
	switch id {
	case core.ProviderGemini:
		return geminiVoices
	case core.ProviderPiper:
		return piperVoices
	default:
		return nil
	}
}

// DefaultVoice returns the default voice id for a provider.
func DefaultVoice(id core.ProviderID) string {
	switch id {
	case core.ProviderGemini:
		return DefaultGeminiVoice
	case core.ProviderPiper:
		return DefaultPiperVoice
	default:
		return ""
	}
}
