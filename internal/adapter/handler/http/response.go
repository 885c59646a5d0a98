package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	domainErrors "github.com/wekeepgrowing/payment-reconciler/internal/domain/errors"
	apperrors "github.com/wekeepgrowing/payment-reconciler/pkg/errors"
	"go.uber.org/zap"
)

// respondError writes the {success:false, error, code} envelope for err.
// Domain errors expose their caller-facing message without the cause chain.
func respondError(c echo.Context, logger *zap.Logger, err error, msg string) error {
	apperrors.LogError(logger, err, msg, zap.String("path", c.Request().URL.Path))

	status, body := apperrors.ErrorBody(err)
	var pe *domainErrors.PaymentError
	if errors.As(err, &pe) && status < http.StatusInternalServerError {
		body["error"] = pe.Message
	}
	return c.JSON(status, body)
}

// wantsJSON reports whether the client asked for a JSON answer rather than a
// browser redirect
func wantsJSON(c echo.Context) bool {
	req := c.Request()
	if strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return true
	}
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return true
	}
	return strings.EqualFold(req.Header.Get(echo.HeaderXRequestedWith), "XMLHttpRequest")
}

// withQuery appends key=value to a redirect target
func withQuery(target, key, value string) string {
	if target == "" {
		target = "/"
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + key + "=" + url.QueryEscape(value)
}
