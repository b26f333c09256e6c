package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nunotfc/amelie/internal/services"
)

// classifyHTTP maps a backend HTTP status onto the shared error taxonomy.
// The classification is decided here, at the boundary, so stage workers
// never have to inspect response bodies.
func classifyHTTP(op string, statusCode int, body string) *services.Error {
	message := fmt.Sprintf("http %d", statusCode)
	if snippet := summarizeBody(body); snippet != "" {
		message += ": " + snippet
	}

	switch {
	case statusCode == http.StatusForbidden:
		return services.NewError(services.KindFileForbidden, op, message, nil)
	case statusCode == http.StatusNotFound:
		return services.NewError(services.KindFileExpired, op, message, nil)
	case statusCode == http.StatusTooManyRequests:
		return services.NewError(services.KindQuota, op, message, nil)
	case statusCode == http.StatusServiceUnavailable:
		return services.NewError(services.KindUnavailable, op, message, nil)
	case statusCode >= http.StatusInternalServerError:
		return services.NewError(services.KindUnavailable, op, message, nil)
	default:
		return services.NewError(services.KindGeneral, op, message, nil)
	}
}

// classifyTransport maps client-side transport failures. Timeouts keep their
// own kind so retry backoff can distinguish them from hard failures.
func classifyTransport(op string, err error) *services.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.NewError(services.KindTimeout, op, "request deadline exceeded", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return services.NewError(services.KindTimeout, op, "request timed out", err)
	}
	return services.NewError(services.KindGeneral, op, "transport failure", err)
}

func summarizeBody(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
