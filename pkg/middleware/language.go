package middleware

import (
	"Guardline/pkg/i18n"

	"github.com/gin-gonic/gin"
)

// ContextLanguage 上下文中保存语言的 key
const ContextLanguage = "lang"

// Language resolves the caller's language from ?lang= first and then the
// Accept-Language header, limited to the languages tr has messages for.
func Language(tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextLanguage, tr.Match(c.Query("lang"), c.GetHeader("Accept-Language")))
		c.Next()
	}
}
