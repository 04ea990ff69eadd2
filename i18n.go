package main

import (
	"fmt"
	"sync"
)

// I18n resolves message keys against per-language tables.
type I18n struct {
	translations map[string]map[string]string
	defaultLang  string
	mu           sync.RWMutex
}

// NewI18n uses the tables in translations.go.
func NewI18n(defaultLang string) (*I18n, error) {
	if _, ok := translations[defaultLang]; !ok {
		return nil, fmt.Errorf("no translations for language %q", defaultLang)
	}
	return &I18n{
		translations: translations,
		defaultLang:  defaultLang,
	}, nil
}

// T looks key up in lang, then in the default language, and formats the
// message with args. An unknown key is returned as is.
func (i *I18n) T(lang, key string, args ...interface{}) string {
	message, ok := i.lookup(lang, key)
	if !ok {
		message, ok = i.lookup(i.defaultLang, key)
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

// Supports reports whether lang has a translation table.
func (i *I18n) Supports(lang string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.translations[lang]
	return ok
}

func (i *I18n) lookup(lang, key string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	msg, ok := i.translations[lang][key]
	return msg, ok && msg != ""
}
