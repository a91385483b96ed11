package i18n

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"gopkg.in/yaml.v3"
)

// Languages lists the interface languages with a locale file
var Languages = []domain.Language{domain.LangEnglish, domain.LangRussian}

type I18n struct {
	translations map[domain.Language]map[string]string
	topics       map[domain.Language]map[string]string
}

type translationFile struct {
	Messages map[string]string `yaml:"messages"`
	Topics   map[string]string `yaml:"topics"`
}

func NewI18n(localesDir string) (*I18n, error) {
	i18n := &I18n{
		translations: make(map[domain.Language]map[string]string),
		topics:       make(map[domain.Language]map[string]string),
	}

	// Load all translation files
	for _, lang := range Languages {
		filename := filepath.Join(localesDir, string(lang)+".yaml")
		if err := i18n.loadTranslations(lang, filename); err != nil {
			return nil, fmt.Errorf("load %s translations: %w", lang, err)
		}
	}

	return i18n, nil
}

func (i *I18n) loadTranslations(lang domain.Language, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var tf translationFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}

	i.translations[lang] = tf.Messages
	i.topics[lang] = tf.Topics

	return nil
}

// Get retrieves a translated message, falling back to English and then to
// the key itself
func (i *I18n) Get(lang domain.Language, key string, args ...interface{}) string {
	msg, ok := i.translations[lang][key]
	if !ok {
		msg, ok = i.translations[domain.LangEnglish][key]
	}
	if !ok {
		return key
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	return msg
}

// TopicTitle retrieves the localized title of a topic. Topics without a
// translation keep their catalog title.
func (i *I18n) TopicTitle(lang domain.Language, topic domain.Topic) string {
	if title, ok := i.topics[lang][topic.ID]; ok {
		return title
	}
	return topic.Title
}

// StatusLabel retrieves the label of a practice status
func (i *I18n) StatusLabel(lang domain.Language, status domain.Status) string {
	return i.Get(lang, "status."+string(status))
}
