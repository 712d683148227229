package i18n

import (
	"embed"
	"encoding/json"
	"path"
	"sync"

	"Guardline/pkg/logger"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// DefaultLanguage is used when a recipient has no language or an unknown one.
const DefaultLanguage = "en"

// Translator 国际化支持，消息文件编译进二进制
type Translator struct {
	bundle  *i18n.Bundle
	matcher language.Matcher
	mu     sync.Mutex
	cache  map[string]*i18n.Localizer
}

// New loads every embedded locale file. defaultLang must be a valid BCP 47 tag.
func New(defaultLang string) (*Translator, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, err
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := path.Join("locales", e.Name())
		buf, err := locales.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(buf, name); err != nil {
			return nil, err
		}
	}
	return &Translator{
		bundle:  bundle,
		matcher: language.NewMatcher(bundle.LanguageTags()),
		cache:   make(map[string]*i18n.Localizer),
	}, nil
}

var (
	defaultOnce sync.Once
	defaultTr   *Translator
)

// Default returns a shared English translator.
func Default() *Translator {
	defaultOnce.Do(func() {
		tr, err := New(DefaultLanguage)
		if err != nil {
			panic(err)
		}
		defaultTr = tr
	})
	return defaultTr
}

// Languages lists the tags that have a message file.
func (t *Translator) Languages() []string {
	tags := t.bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.String())
	}
	return out
}

// Match picks the supported language closest to the given preferences,
// each either a single tag or an Accept-Language header value. It returns
// the bundle's default language when nothing matches.
func (t *Translator) Match(prefs ...string) string {
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	tag, _, conf := t.matcher.Match(tags...)
	if conf == language.No {
		tag = t.bundle.LanguageTags()[0]
	}
	base, _ := tag.Base()
	return base.String()
}

// T 获取翻译文本，缺失时回退到默认语言，再缺失返回 key
func (t *Translator) T(lang, key string, data map[string]interface{}) string {
	s, err := t.localizer(lang).Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		logger.Warn("translation missing", zap.String("lang", lang), zap.String("key", key), zap.Error(err))
		return key
	}
	return s
}

func (t *Translator) localizer(lang string) *i18n.Localizer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.cache[lang]; ok {
		return l
	}
	l := i18n.NewLocalizer(t.bundle, lang)
	t.cache[lang] = l
	return l
}
