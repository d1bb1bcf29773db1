package middleware

import (
	"net/http"
	"time"

	"gosegment/domain/core"
	"gosegment/internal/errors"
	segwiz "gosegment/internal/segmentation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WizardKey is the gin context key holding the resolved wizard.
const WizardKey = "wizard"

// WizardLookup resolves wizard ids to open wizards.
type WizardLookup interface {
	Get(id core.WizardID) (*segwiz.Wizard, error)
}

// LoadWizard resolves the :id path parameter into an open wizard and aborts
// with 404 when there is none.
func LoadWizard(lookup WizardLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := core.ParseWizardID(c.Param("id"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errors.CodeInvalidInput})
			return
		}
		w, err := lookup.Get(id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": errors.CodeNotFound})
			return
		}
		c.Set(WizardKey, w)
		c.Next()
	}
}

// Wizard returns the wizard resolved by LoadWizard.
func Wizard(c *gin.Context) *segwiz.Wizard {
	return c.MustGet(WizardKey).(*segwiz.Wizard)
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
