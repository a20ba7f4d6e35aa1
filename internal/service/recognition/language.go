package recognition

// Language is a recognition language the service accepts.
type Language struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

// DefaultLanguage is used until a session selects another.
const DefaultLanguage = "en-US"

// Languages lists every supported tag in display order.
var Languages = []Language{
	{Tag: "en-US", Name: "English (US)"},
	{Tag: "ar-AR", Name: "Arabic"},
	{Tag: "en-GB", Name: "English (UK)"},
	{Tag: "es-ES", Name: "Spanish"},
	{Tag: "fr-FR", Name: "French"},
	{Tag: "de-DE", Name: "German"},
	{Tag: "it-IT", Name: "Italian"},
	{Tag: "pt-BR", Name: "Portuguese (Brazil)"},
	{Tag: "ja-JP", Name: "Japanese"},
	{Tag: "zh-CN", Name: "Mandarin Chinese"},
}

// IsSupported reports whether tag is one of Languages.
func IsSupported(tag string) bool {
	for _, l := range Languages {
		if l.Tag == tag {
			return true
		}
	}
	return false
}

// Next returns the language after tag, wrapping around. Unknown tags map to
// the first entry.
func Next(tag string) string {
	for i, l := range Languages {
		if l.Tag == tag {
			return Languages[(i+1)%len(Languages)].Tag
		}
	}
	return Languages[0].Tag
}

// Name returns the display name for tag, or tag itself when unknown.
func Name(tag string) string {
	for _, l := range Languages {
		if l.Tag == tag {
			return l.Name
		}
	}
	return tag
}
