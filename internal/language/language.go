// Package language lists the spoken languages a transcription provider can
// be pinned to. The empty code means the provider detects the language.
package language

import "fmt"

type Language struct {
	Code   string // ISO 639-1
	Name   string
	Native string
}

var languages = []Language{
	{"ar", "Arabic", "العربية"},
	{"bg", "Bulgarian", "Български"},
	{"bn", "Bengali", "বাংলা"},
	{"ca", "Catalan", "Català"},
	{"cs", "Czech", "Čeština"},
	{"da", "Danish", "Dansk"},
	{"de", "German", "Deutsch"},
	{"en", "English", "English"},
	{"es", "Spanish", "Español"},
	{"et", "Estonian", "Eesti"},
	{"fa", "Persian", "فارسی"},
	{"fi", "Finnish", "Suomi"},
	{"fr", "French", "Français"},
	{"he", "Hebrew", "עברית"},
	{"hi", "Hindi", "हिन्दी"},
	{"hr", "Croatian", "Hrvatski"},
	{"hu", "Hungarian", "Magyar"},
	{"id", "Indonesian", "Bahasa Indonesia"},
	{"it", "Italian", "Italiano"},
	{"ja", "Japanese", "日本語"},
	{"ko", "Korean", "한국어"},
	{"lt", "Lithuanian", "Lietuvių"},
	{"lv", "Latvian", "Latviešu"},
	{"ms", "Malay", "Bahasa Melayu"},
	{"nl", "Dutch", "Nederlands"},
	{"no", "Norwegian", "Norsk"},
	{"pl", "Polish", "Polski"},
	{"pt", "Portuguese", "Português"},
	{"ro", "Romanian", "Română"},
	{"ru", "Russian", "Русский"},
	{"sk", "Slovak", "Slovenčina"},
	{"sl", "Slovenian", "Slovenščina"},
	{"sv", "Swedish", "Svenska"},
	{"sw", "Swahili", "Kiswahili"},
	{"ta", "Tamil", "தமிழ்"},
	{"te", "Telugu", "తెలుగు"},
	{"th", "Thai", "ไทย"},
	{"tr", "Turkish", "Türkçe"},
	{"uk", "Ukrainian", "Українська"},
	{"ur", "Urdu", "اردو"},
	{"vi", "Vietnamese", "Tiếng Việt"},
	{"zh", "Chinese", "中文"},
}

var byCode = func() map[string]Language {
	m := make(map[string]Language, len(languages))
	for _, l := range languages {
		m[l.Code] = l
	}
	return m
}()

// Lookup finds a language by code.
func Lookup(code string) (Language, bool) {
	l, ok := byCode[code]
	return l, ok
}

// List returns the supported languages sorted by code.
func List() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// IsValidCode accepts a known code or the empty auto-detect code.
func IsValidCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := byCode[code]
	return ok
}

// Label is the display form of a configured code.
func Label(code string) string {
	if code == "" {
		return "auto-detect"
	}
	l, ok := byCode[code]
	if !ok {
		return code
	}
	if l.Native == l.Name {
		return l.Name
	}
	return fmt.Sprintf("%s (%s)", l.Name, l.Native)
}
