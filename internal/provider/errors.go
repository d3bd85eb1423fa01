package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// FailureKind is the coarse class of a remote failure.
type FailureKind string

const (
	KindAuth     FailureKind = "auth"
	KindNotFound FailureKind = "not_found"
	KindQuota    FailureKind = "quota"
	KindNetwork  FailureKind = "network"
	KindOther    FailureKind = "other"
)

// Classify maps a provider error onto a FailureKind. API status codes win
// over message heuristics.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	if code := statusCode(err); code != 0 {
		switch code {
		case 401, 403:
			return KindAuth
		case 404:
			return KindNotFound
		case 429:
			return KindQuota
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"), strings.Contains(msg, "permission_denied"),
		strings.Contains(msg, "unauthenticated"), strings.Contains(msg, "403"), strings.Contains(msg, "401"):
		return KindAuth
	case strings.Contains(msg, "not found"), strings.Contains(msg, "404"):
		return KindNotFound
	case strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "quota"), strings.Contains(msg, "429"):
		return KindQuota
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "eof"), strings.Contains(msg, "reset by peer"):
		return KindNetwork
	}
	return KindOther
}

func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

// Friendly converts a provider error into a short human-readable message.
func Friendly(err error) string {
	if err == nil {
		return ""
	}
	switch code := statusCode(err); code {
	case 401:
		return "authentication failed — check your API key"
	case 403:
		return "access denied — your API key may not have the required permissions"
	case 404:
		return "model or endpoint not found"
	case 429:
		return "rate limited — too many requests, please wait"
	case 500:
		return "internal server error on the provider side"
	case 502, 503:
		return "provider service temporarily unavailable"
	case 0:
	default:
		return fmt.Sprintf("HTTP %d: %s", code, trim(err.Error(), 200))
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") {
		return "connection refused (is the service reachable?)"
	}
	if strings.Contains(msg, "no such host") {
		return "host not found (check your network)"
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return "request timed out"
	}
	if strings.Contains(msg, "EOF") {
		return "connection closed unexpectedly"
	}
	if strings.Contains(msg, "reset by peer") {
		return "connection reset by server"
	}
	return msg
}

func trim(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
